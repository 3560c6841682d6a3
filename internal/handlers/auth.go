package handlers

import (
	"errors"
	"net/http"

	"github.com/nkorolev/authd/internal/apperrors"
	"github.com/nkorolev/authd/internal/handlers/render"
	"github.com/nkorolev/authd/internal/logger"
)

func handleRegister(as authService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type RegisterSuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			l.Debug("register request rejected", "error", err.Error())
			return
		}

		_, err = as.Register(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("register failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, RegisterSuccessResponse{Message: "User registered successfully"})
	})
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		AccessToken string `json:"accesstoken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			l.Debug("login request rejected", "error", err.Error())
			return
		}

		pair, err := as.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		as.SetRefreshCookie(w, pair.Refresh)
		render.JSON(w, LoginSuccessResponse{AccessToken: pair.Access.Value})
	})
}

func handleLogout(as authService, l logger.Logger) http.Handler {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Logout never fails from the client point of view
		err := as.Logout(r.Context(), as.GetRefreshString(r))
		if err != nil {
			l.Error("session clear failed on logout", "error", err.Error())
		}

		as.ClearRefreshCookie(w)
		render.JSON(w, LogoutSuccessResponse{Message: "Logged out"})
	})
}

func handleTokenRefresh(as authService, l logger.Logger) http.Handler {
	type RefreshResponse struct {
		AccessToken string `json:"accesstoken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pair, err := as.RefreshPair(r.Context(), as.GetRefreshString(r))
		if err != nil {
			// Fail soft: an empty access token with status 200, whatever the
			// cause. Log the details, tell the client nothing.
			l.Debug("refresh denied", "error", err.Error())
			render.JSON(w, RefreshResponse{AccessToken: ""})
			return
		}

		as.SetRefreshCookie(w, pair.Refresh)
		render.JSON(w, RefreshResponse{AccessToken: pair.Access.Value})
	})
}
