package server

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// --- JWT helpers ---

// signJWT creates a signed HMAC-SHA256 session token for the given user.
func signJWT(user *models.User, config *common.AuthConfig) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.UserID,
		"firm":  user.FirmID,
		"email": user.Email,
		"name":  user.Name,
		"role":  user.Role,
		"iss":   "dictum-server",
		"iat":   now.Unix(),
		"exp":   now.Add(config.GetTokenExpiry()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.JWTSecret))
}

// hashPassword hashes a password with bcrypt, truncating to bcrypt's
// 72-byte input limit.
func hashPassword(password string) (string, error) {
	passwordBytes := []byte(password)
	if len(passwordBytes) > 72 {
		passwordBytes = passwordBytes[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(passwordBytes, 10)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword compares a candidate password against a bcrypt hash.
func checkPassword(hash, password string) bool {
	passwordBytes := []byte(password)
	if len(passwordBytes) > 72 {
		passwordBytes = passwordBytes[:72]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), passwordBytes) == nil
}

// newInviteCode generates a short random invite code.
func newInviteCode() string {
	buf := make([]byte, 10)
	rand.Read(buf)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
}

// validateEmail checks that an email address is plausible and safe for storage.
func validateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > 254 {
		return "email must be 254 characters or fewer"
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "email is invalid"
	}
	for _, c := range email {
		if c < 0x21 || c == 0x7f {
			return "email contains invalid characters"
		}
	}
	return ""
}

// --- Login rate limiting ---

// loginIdleEviction is how long an email's limiter survives without a
// login attempt before it is dropped from the map.
const loginIdleEviction = 10 * time.Minute

// loginLimiter throttles login attempts per email address. Entries idle
// past loginIdleEviction are swept on access so the map stays bounded.
type loginLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*loginEntry
	perMin    int
	lastSweep time.Time
	now       func() time.Time
}

type loginEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(attemptsPerMinute int) *loginLimiter {
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = 10
	}
	return &loginLimiter{
		limiters: make(map[string]*loginEntry),
		perMin:   attemptsPerMinute,
		now:      time.Now,
	}
}

// Allow reports whether another login attempt is permitted for the email.
func (l *loginLimiter) Allow(email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= loginIdleEviction {
		for key, e := range l.limiters {
			if now.Sub(e.lastSeen) >= loginIdleEviction {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	key := strings.ToLower(email)
	e, ok := l.limiters[key]
	if !ok {
		e = &loginEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// --- Auth handlers ---

// handleAuthRegister handles POST /api/auth/register.
// A firm_name creates a new firm with the registrant as admin; an
// invite_code joins an existing firm as a member.
func (s *Server) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		FirmName   string `json:"firm_name"`
		InviteCode string `json:"invite_code"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if errMsg := validateEmail(req.Email); errMsg != "" {
		WriteError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Password) < 8 {
		WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if (req.FirmName == "") == (req.InviteCode == "") {
		WriteError(w, http.StatusBadRequest, "provide exactly one of firm_name or invite_code")
		return
	}

	ctx := r.Context()
	accounts := s.app.Storage.AccountStore()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := accounts.GetUserByEmail(ctx, email); err == nil {
		WriteError(w, http.StatusConflict, fmt.Sprintf("email '%s' is already registered", email))
		return
	}

	var firm *models.Firm
	role := models.RoleMember

	if req.FirmName != "" {
		now := time.Now()
		firm = &models.Firm{
			FirmID:     uuid.New().String(),
			Name:       req.FirmName,
			InviteCode: newInviteCode(),
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := accounts.SaveFirm(ctx, firm); err != nil {
			s.logger.Error().Err(err).Msg("Failed to save firm")
			WriteError(w, http.StatusInternalServerError, "failed to create firm")
			return
		}
		role = models.RoleAdmin
	} else {
		var err error
		firm, err = accounts.GetFirmByInviteCode(ctx, req.InviteCode)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid invite code")
			return
		}
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		WriteError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	now := time.Now()
	user := &models.User{
		UserID:       uuid.New().String(),
		FirmID:       firm.FirmID,
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	if err := accounts.SaveUser(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to save user")
		WriteError(w, http.StatusInternalServerError, "failed to save user")
		return
	}

	token, err := signJWT(user, &s.app.Config.Auth)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign session token")
		WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Str("firm_id", firm.FirmID).Str("role", role).Msg("User registered")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  userResponse(user),
		"firm": map[string]interface{}{
			"firm_id": firm.FirmID,
			"name":    firm.Name,
		},
	})
}

// handleAuthLogin handles POST /api/auth/login.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if !s.logins.Allow(email) {
		s.logger.Warn().Str("email", email).Msg("Login rate limit exceeded")
		WriteError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	ctx := r.Context()
	user, err := s.app.Storage.AccountStore().GetUserByEmail(ctx, email)
	if err != nil || !checkPassword(user.PasswordHash, req.Password) {
		WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := signJWT(user, &s.app.Config.Auth)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign session token")
		WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(s.app.Config.Auth.GetTokenExpiry().Seconds()),
		"user":       userResponse(user),
	})
}

// handleAuthValidate handles GET /api/auth/validate.
// The bearer middleware has already validated the token and loaded the user.
func (s *Server) handleAuthValidate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"user_id": ac.UserID,
		"firm_id": ac.FirmID,
		"role":    ac.Role,
	})
}

// handleAuthProfile handles GET/PUT /api/auth/profile.
func (s *Server) handleAuthProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleProfileGet(w, r)
	case http.MethodPut:
		s.handleProfileUpdate(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut)
	}
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	user, err := s.app.Storage.AccountStore().GetUser(ctx, ac.UserID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	firm, err := s.app.Storage.AccountStore().GetFirm(ctx, ac.FirmID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "firm not found")
		return
	}

	resp := map[string]interface{}{
		"user": userResponse(user),
		"firm": map[string]interface{}{
			"firm_id":    firm.FirmID,
			"name":       firm.Name,
			"created_at": firm.CreatedAt,
		},
	}
	// Invite codes are admin-only.
	if ac.IsAdmin() {
		resp["firm"].(map[string]interface{})["invite_code"] = firm.InviteCode
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleProfileUpdate updates the caller's display name and, with the
// current password, their password.
func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Name            string `json:"name"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	accounts := s.app.Storage.AccountStore()
	user, err := accounts.GetUser(ctx, ac.UserID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "user not found")
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.NewPassword != "" {
		if len(req.NewPassword) < 8 {
			WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
			return
		}
		if !checkPassword(user.PasswordHash, req.CurrentPassword) {
			WriteError(w, http.StatusForbidden, "current password is incorrect")
			return
		}
		hash, err := hashPassword(req.NewPassword)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to hash password")
			WriteError(w, http.StatusInternalServerError, "failed to update password")
			return
		}
		user.PasswordHash = hash
	}

	user.ModifiedAt = time.Now()
	if err := accounts.SaveUser(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to update profile")
		WriteError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	WriteJSON(w, http.StatusOK, userResponse(user))
}

// --- Firm handlers ---

// handleFirmGet handles GET /api/firm.
func (s *Server) handleFirmGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	firm, err := s.app.Storage.AccountStore().GetFirm(r.Context(), ac.FirmID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "firm not found")
		return
	}

	resp := map[string]interface{}{
		"firm_id":    firm.FirmID,
		"name":       firm.Name,
		"created_at": firm.CreatedAt,
	}
	if ac.IsAdmin() {
		resp["invite_code"] = firm.InviteCode
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleFirmRotateInvite handles POST /api/firm/invite/rotate (admin only).
func (s *Server) handleFirmRotateInvite(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	if !ac.IsAdmin() {
		WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	ctx := r.Context()
	accounts := s.app.Storage.AccountStore()
	firm, err := accounts.GetFirm(ctx, ac.FirmID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "firm not found")
		return
	}

	firm.InviteCode = newInviteCode()
	firm.ModifiedAt = time.Now()
	if err := accounts.SaveFirm(ctx, firm); err != nil {
		s.logger.Error().Err(err).Str("firm_id", firm.FirmID).Msg("Failed to rotate invite code")
		WriteError(w, http.StatusInternalServerError, "failed to rotate invite code")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"invite_code": firm.InviteCode})
}

// handleFirmMembers handles GET /api/firm/members.
func (s *Server) handleFirmMembers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}

	users, err := s.app.Storage.AccountStore().ListFirmUsers(r.Context(), ac.FirmID)
	if err != nil {
		s.logger.Error().Err(err).Str("firm_id", ac.FirmID).Msg("Failed to list firm members")
		WriteError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	members := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		members = append(members, userResponse(u))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// handleFirmMemberRole handles PUT /api/firm/members/{id}/role (admin only).
func (s *Server) handleFirmMemberRole(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	if !ac.IsAdmin() {
		WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleMember {
		WriteError(w, http.StatusBadRequest, "role must be 'admin' or 'member'")
		return
	}

	ctx := r.Context()
	accounts := s.app.Storage.AccountStore()
	user, err := accounts.GetUser(ctx, userID)
	if err != nil || user.FirmID != ac.FirmID {
		WriteError(w, http.StatusNotFound, "member not found")
		return
	}

	// An admin cannot demote themselves if they are the last admin.
	if user.UserID == ac.UserID && req.Role != models.RoleAdmin {
		users, err := accounts.ListFirmUsers(ctx, ac.FirmID)
		if err == nil {
			admins := 0
			for _, u := range users {
				if u.Role == models.RoleAdmin {
					admins++
				}
			}
			if admins <= 1 {
				WriteError(w, http.StatusConflict, "cannot demote the last admin")
				return
			}
		}
	}

	user.Role = req.Role
	user.ModifiedAt = time.Now()
	if err := accounts.SaveUser(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to update member role")
		WriteError(w, http.StatusInternalServerError, "failed to update role")
		return
	}

	WriteJSON(w, http.StatusOK, userResponse(user))
}

// handleFirmMemberRemove handles DELETE /api/firm/members/{id} (admin only).
// The last admin of a firm cannot be removed.
func (s *Server) handleFirmMemberRemove(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	ac, ok := authFromRequest(w, r)
	if !ok {
		return
	}
	if !ac.IsAdmin() {
		WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	ctx := r.Context()
	accounts := s.app.Storage.AccountStore()
	user, err := accounts.GetUser(ctx, userID)
	if err != nil || user.FirmID != ac.FirmID {
		WriteError(w, http.StatusNotFound, "member not found")
		return
	}

	if user.Role == models.RoleAdmin {
		users, err := accounts.ListFirmUsers(ctx, ac.FirmID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list members")
			return
		}
		admins := 0
		for _, u := range users {
			if u.Role == models.RoleAdmin {
				admins++
			}
		}
		if admins <= 1 {
			WriteError(w, http.StatusConflict, "cannot remove the last admin")
			return
		}
	}

	if err := accounts.DeleteUser(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to remove member")
		WriteError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}

	s.logger.Info().Str("user_id", userID).Str("firm_id", ac.FirmID).Str("removed_by", ac.UserID).Msg("Member removed")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// userResponse strips sensitive fields from a user record. Password hashes
// must never appear in responses.
func userResponse(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    u.UserID,
		"firm_id":    u.FirmID,
		"email":      u.Email,
		"name":       u.Name,
		"role":       u.Role,
		"created_at": u.CreatedAt,
	}
}
