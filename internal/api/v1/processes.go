package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
	"github.com/gosuda/sgi/internal/process"
)

type CreateProcessInput struct {
	Body struct {
		Title          string     `json:"title" minLength:"1" maxLength:"500" doc:"Process title"`
		ClientName     string     `json:"client_name,omitempty" maxLength:"255" doc:"Client name"`
		ClientDocument string     `json:"client_document,omitempty" maxLength:"64" doc:"Client document (CPF/CNPJ)"`
		ClientContact  string     `json:"client_contact,omitempty" maxLength:"255" doc:"Client phone or email"`
		Assignee       *uuid.UUID `json:"assignee,omitempty" doc:"Responsible staff member"`
		ClientUserID   *uuid.UUID `json:"client_user_id,omitempty" doc:"Client member allowed to follow the process"`
	}
}

type ProcessOutput struct {
	Body *domain.Process
}

type ListProcessesOutput struct {
	Body []*domain.Process
}

type ProcessIDInput struct {
	ID uuid.UUID `path:"id" doc:"Process ID"`
}

type UpdateProcessInput struct {
	ID   uuid.UUID `path:"id" doc:"Process ID"`
	Body struct {
		Title           *string    `json:"title,omitempty" maxLength:"500" doc:"Process title"`
		ClientName      *string    `json:"client_name,omitempty" maxLength:"255" doc:"Client name"`
		ClientDocument  *string    `json:"client_document,omitempty" maxLength:"64" doc:"Client document"`
		ClientContact   *string    `json:"client_contact,omitempty" maxLength:"255" doc:"Client contact"`
		Assignee        *uuid.UUID `json:"assignee,omitempty" doc:"Responsible staff member"`
		ClearAssignee   bool       `json:"clear_assignee,omitempty" doc:"Remove the responsible staff member"`
		ClientUserID    *uuid.UUID `json:"client_user_id,omitempty" doc:"Client member"`
		ClearClientUser bool       `json:"clear_client_user,omitempty" doc:"Unlink the client member"`
	}
}

type UpdateStatusInput struct {
	ID   uuid.UUID `path:"id" doc:"Process ID"`
	Body struct {
		Status string `json:"status" enum:"cadastro,triagem,analise,concluido" doc:"Target status; only forward moves are allowed"`
	}
}

func RegisterProcessRoutes(api huma.API, svc ProcessService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/processes",
		Summary:     "List processes, newest first",
		Tags:        []string{"Processes"},
	}, func(ctx context.Context, _ *struct{}) (*ListProcessesOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		processes, err := svc.List(ctx, tc)
		if err != nil {
			return nil, apiError("list-processes", err)
		}
		if processes == nil {
			processes = []*domain.Process{}
		}

		return &ListProcessesOutput{Body: processes}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/processes",
		Summary:       "Create a process",
		Tags:          []string{"Processes"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateProcessInput) (*ProcessOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		p, err := svc.Create(ctx, tc, process.CreateInput{
			Title:          input.Body.Title,
			ClientName:     input.Body.ClientName,
			ClientDocument: input.Body.ClientDocument,
			ClientContact:  input.Body.ClientContact,
			Assignee:       input.Body.Assignee,
			ClientUserID:   input.Body.ClientUserID,
		})
		if err != nil {
			return nil, apiError("create-process", err)
		}

		return &ProcessOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/processes/{id}",
		Summary:     "Get a process",
		Tags:        []string{"Processes"},
	}, func(ctx context.Context, input *ProcessIDInput) (*ProcessOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		p, err := svc.Get(ctx, tc, input.ID)
		if err != nil {
			return nil, apiError("get-process", err)
		}

		return &ProcessOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process",
		Method:      http.MethodPatch,
		Path:        "/processes/{id}",
		Summary:     "Edit process fields",
		Tags:        []string{"Processes"},
	}, func(ctx context.Context, input *UpdateProcessInput) (*ProcessOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		b := input.Body
		p, err := svc.UpdateFields(ctx, tc, input.ID, process.Patch{
			Title:           b.Title,
			ClientName:      b.ClientName,
			ClientDocument:  b.ClientDocument,
			ClientContact:   b.ClientContact,
			Assignee:        b.Assignee,
			ClearAssignee:   b.ClearAssignee,
			ClientUserID:    b.ClientUserID,
			ClearClientUser: b.ClearClientUser,
		})
		if err != nil {
			return nil, apiError("update-process", err)
		}

		return &ProcessOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process-status",
		Method:      http.MethodPatch,
		Path:        "/processes/{id}/status",
		Summary:     "Move a process forward in its lifecycle",
		Tags:        []string{"Processes"},
	}, func(ctx context.Context, input *UpdateStatusInput) (*ProcessOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		p, err := svc.UpdateStatus(ctx, tc, input.ID, domain.ProcessStatus(input.Body.Status))
		if err != nil {
			return nil, apiError("update-process-status", err)
		}

		return &ProcessOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-process",
		Method:        http.MethodDelete,
		Path:          "/processes/{id}",
		Summary:       "Delete a process and its timeline",
		Tags:          []string{"Processes"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ProcessIDInput) (*struct{}, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		if err := svc.Delete(ctx, tc, input.ID); err != nil {
			return nil, apiError("delete-process", err)
		}

		return nil, nil
	})
}
