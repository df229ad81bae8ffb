package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/sgi/internal/domain"
)

type ListMembersOutput struct {
	Body []*domain.Member
}

type AddMemberInput struct {
	Body struct {
		Email string `json:"email" minLength:"3" maxLength:"255" doc:"Email of an existing user"`
		Role  string `json:"role" minLength:"1" doc:"owner, admin, staff or client"`
	}
}

type AddMemberOutput struct {
	Body *domain.Member
}

type ChangeRoleInput struct {
	UserID uuid.UUID `path:"userID" doc:"Member user ID"`
	Body   struct {
		Role string `json:"role" minLength:"1" doc:"owner, admin, staff or client"`
	}
}

type RemoveMemberInput struct {
	UserID uuid.UUID `path:"userID" doc:"Member user ID"`
}

type RemoveMemberOutput struct {
	Body struct {
		ReleasedProcesses []uuid.UUID `json:"released_processes" doc:"Processes whose assignee was cleared"`
	}
}

func RegisterMemberRoutes(api huma.API, dir TenantDirectory) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List organization members",
		Tags:        []string{"Members"},
	}, func(ctx context.Context, _ *struct{}) (*ListMembersOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		members, err := dir.ListMembers(ctx, tc)
		if err != nil {
			return nil, apiError("list-members", err)
		}
		if members == nil {
			members = []*domain.Member{}
		}

		return &ListMembersOutput{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Add an existing user to the organization",
		Tags:          []string{"Members"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddMemberInput) (*AddMemberOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, apiError("add-member", err)
		}

		m, err := dir.AddMember(ctx, tc, input.Body.Email, role)
		if err != nil {
			return nil, apiError("add-member", err)
		}

		return &AddMemberOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "change-member-role",
		Method:        http.MethodPatch,
		Path:          "/members/{userID}",
		Summary:       "Change a member's role",
		Tags:          []string{"Members"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ChangeRoleInput) (*struct{}, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, apiError("change-member-role", err)
		}

		if err := dir.ChangeRole(ctx, tc, input.UserID, role); err != nil {
			return nil, apiError("change-member-role", err)
		}

		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/members/{userID}",
		Summary:     "Remove a member from the organization",
		Tags:        []string{"Members"},
	}, func(ctx context.Context, input *RemoveMemberInput) (*RemoveMemberOutput, error) {
		tc, err := tenantContext(ctx)
		if err != nil {
			return nil, err
		}

		released, err := dir.RemoveMember(ctx, tc, input.UserID)
		if err != nil {
			return nil, apiError("remove-member", err)
		}

		out := &RemoveMemberOutput{}
		out.Body.ReleasedProcesses = released
		if out.Body.ReleasedProcesses == nil {
			out.Body.ReleasedProcesses = []uuid.UUID{}
		}
		return out, nil
	})
}
