package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/async"
	"github.com/platinummonkey/taskhub/pkg/audit"
	"github.com/platinummonkey/taskhub/pkg/auth"
	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/storage"
	"github.com/platinummonkey/taskhub/pkg/validation"
)

const avatarPrefix = "avatars"

// registerAuthRoutes registers the account routes under /api/v1/auth
func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/verify/email/{token}", s.verifyEmail).Methods(http.MethodGet)
	r.Handle("/verify/email/resend", s.emailLimit(http.HandlerFunc(s.resendVerification))).Methods(http.MethodPost)
	r.Handle("/login", s.loginLimit(http.HandlerFunc(s.login))).Methods(http.MethodPost)
	r.Handle("/password/forgot", s.emailLimit(http.HandlerFunc(s.forgotPassword))).Methods(http.MethodPost)
	r.HandleFunc("/password/reset/{token}", s.resetPassword).Methods(http.MethodPost)
	r.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)

	r.Handle("/password/change", s.authn.Handler(http.HandlerFunc(s.changePassword))).Methods(http.MethodPost)
	r.Handle("/me", s.authn.Handler(http.HandlerFunc(s.currentUser))).Methods(http.MethodGet)
	r.Handle("/logout", s.authn.Handler(http.HandlerFunc(s.logout))).Methods(http.MethodPost)
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (req *registerRequest) validate(v *validation.Validator) error {
	return validation.First(
		v.Email("email", req.Email),
		v.Username(req.Username),
		v.Password("password", req.Password),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// sessionResponse is returned by login and refresh
type sessionResponse struct {
	User         *auth.User `json:"user,omitempty"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

// register handles POST /api/v1/auth/register. It accepts JSON or a
// multipart form with an optional avatar file.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	var avatar *storage.Object
	if isMultipart(r) {
		cleanup, err := s.parseMultipart(r)
		defer cleanup()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		req = registerRequest{
			Email:    formValue(r, "email"),
			Username: formValue(r, "username"),
			Password: r.FormValue("password"),
			FullName: formValue(r, "fullName"),
		}
		if err := req.validate(s.validator); err != nil {
			s.fail(w, r, err)
			return
		}
		if avatar, err = s.uploadAvatar(r); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		if !s.decode(w, r, &req) {
			return
		}
		if err := req.validate(s.validator); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	in := auth.RegisterInput{
		Email:    validation.NormalizeEmail(req.Email),
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
	}
	if avatar != nil {
		in.AvatarURL = avatar.URL
	}

	user, token, err := s.credentials.Register(ctx, in)
	if err != nil {
		if avatar != nil {
			s.releaseObjects(ctx, []string{avatar.Key})
		}
		s.metrics.RecordAuthEvent("register", "failure")
		s.fail(w, r, err)
		return
	}

	s.mailer.SendVerification(ctx, user.Email, user.Username, token)
	s.metrics.RecordAuthEvent("register", "success")
	s.record(r, audit.NewEvent(ctx, audit.EventTypeRegister, audit.EventStatusSuccess).
		WithUser(user.ID).
		WithResource(audit.ResourceTypeUser, strconv.FormatInt(user.ID, 10)))

	httputil.WriteCreated(w, "User registered successfully. Please verify your email", user)
}

// uploadAvatar stores the optional avatar file of a register form
func (s *Server) uploadAvatar(r *http.Request) (*storage.Object, error) {
	uploads, closeFiles, err := s.formFiles(r, "avatar")
	defer closeFiles()
	if err != nil || len(uploads) == 0 {
		return nil, err
	}

	u := uploads[0]
	if !strings.HasPrefix(u.ContentType, "image/") {
		return nil, apierr.Validation("avatar", "Avatar must be an image")
	}
	return s.uploader.Upload(r.Context(), storage.ObjectKey(avatarPrefix, u.Filename), u.ContentType, u.Body, u.Size)
}

// verifyEmail handles GET /api/v1/auth/verify/email/{token}
func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		s.fail(w, r, apierr.InvalidOrExpired("Verification token is required"))
		return
	}

	user, err := s.credentials.ConsumeVerificationToken(ctx, token)
	if err != nil {
		s.metrics.RecordAuthEvent("verify_email", "failure")
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordAuthEvent("verify_email", "success")
	s.record(r, audit.NewEvent(ctx, audit.EventTypeEmailVerified, audit.EventStatusSuccess).WithUser(user.ID))
	httputil.WriteOK(w, "Email verified successfully", nil)
}

// resendVerification handles POST /api/v1/auth/verify/email/resend
func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Email("email", req.Email); err != nil {
		s.fail(w, r, err)
		return
	}

	user, token, err := s.credentials.ResendVerification(ctx, validation.NormalizeEmail(req.Email))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.mailer.SendVerification(ctx, user.Email, user.Username, token)
	httputil.WriteOK(w, "Mail has been sent to your mail ID", nil)
}

// login handles POST /api/v1/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validation.First(
		s.validator.Email("email", req.Email),
		s.validator.Required("password", req.Password, "Password is required"),
	); err != nil {
		s.fail(w, r, err)
		return
	}

	user, pair, err := s.credentials.Login(ctx, validation.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		s.metrics.RecordAuthEvent("login", "failure")
		if kind := apierr.KindOf(err); kind != apierr.KindInternal {
			event := audit.NewEvent(ctx, audit.EventTypeLoginFailed, audit.EventStatusFailure)
			event.Message = kind.String()
			event.Metadata["email"] = validation.NormalizeEmail(req.Email)
			s.record(r, event)
		}
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordAuthEvent("login", "success")
	s.record(r, audit.NewEvent(ctx, audit.EventTypeLogin, audit.EventStatusSuccess).WithUser(user.ID))

	httputil.SetAuthCookies(w, s.cookies, pair.AccessToken, pair.RefreshToken)
	httputil.WriteOK(w, "User logged in Successfully", sessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// forgotPassword handles POST /api/v1/auth/password/forgot. The response
// does not reveal whether the email is registered.
func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Email("email", req.Email); err != nil {
		s.fail(w, r, err)
		return
	}

	user, token, err := s.credentials.RequestPasswordReset(ctx, validation.NormalizeEmail(req.Email))
	switch {
	case err == nil:
		s.mailer.SendPasswordReset(ctx, user.Email, user.Username, token)
		s.record(r, audit.NewEvent(ctx, audit.EventTypePasswordResetRequest, audit.EventStatusSuccess).WithUser(user.ID))
	case apierr.IsKind(err, apierr.KindNotFound):
	default:
		s.fail(w, r, err)
		return
	}

	httputil.WriteOK(w, "If an account exists for this email, a password reset link has been sent", nil)
}

// resetPassword handles POST /api/v1/auth/password/reset/{token}
func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		s.fail(w, r, apierr.InvalidOrExpired("Reset token is required"))
		return
	}

	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Password("newPassword", req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.credentials.ConsumePasswordResetToken(ctx, token, req.NewPassword)
	if err != nil {
		s.metrics.RecordAuthEvent("password_reset", "failure")
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordAuthEvent("password_reset", "success")
	s.record(r, audit.NewEvent(ctx, audit.EventTypePasswordReset, audit.EventStatusSuccess).WithUser(user.ID))
	httputil.WriteOK(w, "Password reset successfully", nil)
}

// changePassword handles POST /api/v1/auth/password/change
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := s.caller(r)

	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := validation.First(
		s.validator.Required("oldPassword", req.OldPassword, "Old password is required"),
		s.validator.Password("newPassword", req.NewPassword),
	); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.credentials.ChangePassword(ctx, identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		if !apierr.IsKind(err, apierr.KindInternal) {
			s.record(r, audit.NewEvent(ctx, audit.EventTypePasswordChange, audit.EventStatusFailure).WithUser(identity.UserID))
		}
		s.fail(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypePasswordChange, audit.EventStatusSuccess).WithUser(identity.UserID))
	httputil.WriteOK(w, "New Password changed successfully", nil)
}

// currentUser handles GET /api/v1/auth/me
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.credentials.CurrentUser(r.Context(), s.caller(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Current User Data Fetched Successfully", user)
}

// refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// its cookie, falling back to the JSON body.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var presented string
	if cookie, err := r.Cookie(httputil.RefreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if !s.decode(w, r, &req) {
			return
		}
		presented = req.RefreshToken
	}
	if presented == "" {
		s.fail(w, r, apierr.Unauthorized("Unauthorized request"))
		return
	}

	user, pair, err := s.credentials.Refresh(ctx, presented)
	if err != nil {
		s.metrics.RecordAuthEvent("refresh", "failure")
		if apierr.IsKind(err, apierr.KindSessionExpired) {
			event := audit.NewEvent(ctx, audit.EventTypeTokenRefresh, audit.EventStatusDenied)
			event.Message = "refresh token reuse"
			if owner, ok := s.credentials.Issuer().RefreshTokenOwner(presented); ok {
				event.WithUser(owner)
			}
			s.record(r, event)
		}
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordAuthEvent("refresh", "success")
	s.record(r, audit.NewEvent(ctx, audit.EventTypeTokenRefresh, audit.EventStatusSuccess).WithUser(user.ID))

	httputil.SetAuthCookies(w, s.cookies, pair.AccessToken, pair.RefreshToken)
	httputil.WriteOK(w, "Token Refreshed Successfully", sessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// logout handles POST /api/v1/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := s.caller(r)

	if err := s.credentials.Logout(ctx, identity.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	s.record(r, audit.NewEvent(ctx, audit.EventTypeLogout, audit.EventStatusSuccess).WithUser(identity.UserID))
	httputil.ClearAuthCookies(w, s.cookies)
	httputil.WriteOK(w, "User Logged Out Successfully", nil)
}

// releaseObjects deletes stored files in the background
func (s *Server) releaseObjects(ctx context.Context, keys []string) {
	if len(keys) == 0 || s.uploader == nil {
		return
	}
	async.SafeGo(ctx, s.logger, time.Minute, "release objects", func(ctx context.Context) error {
		for _, key := range keys {
			if err := s.uploader.Delete(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}
