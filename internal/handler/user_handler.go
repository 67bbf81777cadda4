package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pingup/internal/app/graph"
	"pingup/internal/app/user"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/req"
	"pingup/internal/pkg/resp"
)

// HandleSyncUser stores the caller's profile as asserted by the identity token.
func HandleSyncUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		u, err := deps.Users.Sync(r.Context(), user.Profile{
			ID:             identity.ID,
			Username:       identity.Username,
			FullName:       identity.FullName,
			ProfilePicture: identity.Avatar,
		})
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

// HandleGetNetwork lists the caller's connections, followers, followees and pending requesters.
func HandleGetNetwork(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		network, err := deps.Graph.Network(r.Context(), jwt.UserID(r))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, network)
	}
}

// HandleGetStatus reports the caller's connection state towards {userId}.
func HandleGetStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		other := chi.URLParam(r, "userId")

		state, err := deps.Graph.Status(r.Context(), jwt.UserID(r), other)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user_id": other,
			"status":  state,
		})
	}
}

// targetAction binds {"id": ...} and runs op for the caller and the target.
func targetAction(op func(r *http.Request, me, other string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		other, customErr := req.BindTarget(w, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		data, err := op(r, jwt.UserID(r), other)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, data)
	}
}

func HandleFollow(deps *AppDeps) http.HandlerFunc {
	return targetAction(func(r *http.Request, me, other string) (any, error) {
		if err := deps.Graph.Follow(r.Context(), me, other); err != nil {
			return nil, err
		}
		return map[string]any{"following": other}, nil
	})
}

// HandleUnfollow removes every edge between the caller and the target.
func HandleUnfollow(deps *AppDeps) http.HandlerFunc {
	return targetAction(func(r *http.Request, me, other string) (any, error) {
		if err := deps.Graph.Unfollow(r.Context(), me, other); err != nil {
			return nil, err
		}
		return map[string]any{"unfollowed": other}, nil
	})
}

func HandleRequestConnection(deps *AppDeps) http.HandlerFunc {
	return targetAction(func(r *http.Request, me, other string) (any, error) {
		request, err := deps.Graph.RequestConnection(r.Context(), me, other)
		if err != nil {
			return nil, err
		}
		return map[string]any{"request": request}, nil
	})
}

func HandleAcceptConnection(deps *AppDeps) http.HandlerFunc {
	return targetAction(func(r *http.Request, me, other string) (any, error) {
		request, err := deps.Graph.AcceptConnection(r.Context(), me, other)
		if err != nil {
			return nil, err
		}
		return map[string]any{"request": request, "status": graph.StateConnected}, nil
	})
}

func HandleDeclineConnection(deps *AppDeps) http.HandlerFunc {
	return targetAction(func(r *http.Request, me, other string) (any, error) {
		if err := deps.Graph.DeclineConnection(r.Context(), me, other); err != nil {
			return nil, err
		}
		return map[string]any{"declined": other}, nil
	})
}
