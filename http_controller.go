package accounts

import (
	stderrors "errors"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AccountControllerRoutes holds the route prefixes the controller registers.
type AccountControllerRoutes struct {
	Register    string
	Login       string
	VerifyEmail string
	Accounts    string
}

// AccountController exposes the lifecycle service as a JSON API. Status-code
// mapping lives here; the service below it knows nothing about transports.
type AccountController struct {
	Debug   bool
	Logger  Logger
	Service *Service
	Routes  *AccountControllerRoutes
}

type AccountControllerOption func(*AccountController) *AccountController

func WithControllerLogger(l Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerService(s *Service) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Service = s
		return c
	}
}

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Routes: &AccountControllerRoutes{
			Register:    "/register",
			Login:       "/login",
			VerifyEmail: "/verify-email",
			Accounts:    "/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in account controller...")
	}

	return c
}

// RegisterAccountRoutes wires the controller into the router.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {
	controller := NewAccountController(opts...)

	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("accounts.register")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("accounts.login")
	app.Get(fmt.Sprintf("%s/locked", controller.Routes.Login), controller.LockStatus).
		SetName("accounts.login.locked")

	app.Get(fmt.Sprintf("%s/:id/:token", controller.Routes.VerifyEmail), controller.VerifyEmail).
		SetName("accounts.verify-email")

	app.Get(controller.Routes.Accounts, controller.Index).
		SetName("accounts.index")
	app.Post(controller.Routes.Accounts, controller.Create).
		SetName("accounts.create")
	app.Get(fmt.Sprintf("%s/:id", controller.Routes.Accounts), controller.Show).
		SetName("accounts.show")
	app.Put(fmt.Sprintf("%s/:id", controller.Routes.Accounts), controller.Update).
		SetName("accounts.update")
	app.Delete(fmt.Sprintf("%s/:id", controller.Routes.Accounts), controller.Destroy).
		SetName("accounts.destroy")
	app.Post(fmt.Sprintf("%s/:id/unlock", controller.Routes.Accounts), controller.Unlock).
		SetName("accounts.unlock")
	app.Post(fmt.Sprintf("%s/:id/reset-password", controller.Routes.Accounts), controller.ResetPassword).
		SetName("accounts.reset-password")
}

// RegisterPayload is the self-registration body.
type RegisterPayload struct {
	Email          string `json:"email" form:"email"`
	Nickname       string `json:"nickname" form:"nickname"`
	Password       string `json:"password" form:"password"`
	FirstName      string `json:"first_name" form:"first_name"`
	LastName       string `json:"last_name" form:"last_name"`
	Bio            string `json:"bio" form:"bio"`
	Phone          string `json:"phone_number" form:"phone_number"`
	ProfilePicture string `json:"profile_picture" form:"profile_picture"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Nickname, validation.Length(3, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
	)
}

func (a *AccountController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": formatValidationErrors(err),
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("===============================")
	}

	account, err := a.Service.Register(ctx.Context(), RegisterInput{
		Email:          payload.Email,
		Nickname:       payload.Nickname,
		Password:       payload.Password,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Bio:            payload.Bio,
		Phone:          payload.Phone,
		ProfilePicture: payload.ProfilePicture,
	})

	// A notification failure arrives with a committed account; the client
	// must learn the account exists even though no email went out.
	if err != nil && account != nil && IsNotification(err) {
		a.Logger.Warn("registration notification failed", "error", err)
		return ctx.JSON(router.StatusCreated, map[string]any{
			"account": account.Public(),
			"warning": "verification email could not be delivered",
		})
	}

	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"account": account.Public(),
	})
}

// LoginPayload is the login body.
type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": formatValidationErrors(err),
		})
	}

	account, err := a.Service.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		// Deliberately identical for every failure mode.
		return ctx.JSON(router.StatusUnauthorized, map[string]any{
			"error": "invalid credentials",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account.Public(),
	})
}

func (a *AccountController) LockStatus(ctx router.Context) error {
	email := ctx.Query("email")
	if email == "" {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "email query parameter is required",
		})
	}

	locked, err := a.Service.IsAccountLocked(ctx.Context(), email)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"locked": locked,
	})
}

func (a *AccountController) VerifyEmail(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	ok, err := a.Service.VerifyEmail(ctx.Context(), id, ctx.Param("token"))
	if err != nil {
		return a.renderError(ctx, err)
	}

	if !ok {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid or expired verification token",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"verified": true,
	})
}

// CreatePayload is the administrative creation body.
type CreatePayload struct {
	RegisterPayload
	Role      string `json:"role" form:"role"`
	UseHashid bool   `json:"use_hashid" form:"use_hashid"`
}

// Validate will run validation rules
func (r CreatePayload) Validate() error {
	if err := r.RegisterPayload.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.In(RoleStandard, RoleManager, RoleAdmin)),
	)
}

func (a *AccountController) Create(ctx router.Context) error {
	payload := new(CreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("create account parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": formatValidationErrors(err),
		})
	}

	account, err := a.Service.Create(ctx.Context(), CreateInput{
		RegisterInput: RegisterInput{
			Email:          payload.Email,
			Nickname:       payload.Nickname,
			Password:       payload.Password,
			FirstName:      payload.FirstName,
			LastName:       payload.LastName,
			Bio:            payload.Bio,
			Phone:          payload.Phone,
			ProfilePicture: payload.ProfilePicture,
		},
		Role:      payload.Role,
		UseHashid: payload.UseHashid,
	})

	if err != nil && account != nil && IsNotification(err) {
		a.Logger.Warn("account creation notification failed", "error", err)
		return ctx.JSON(router.StatusCreated, map[string]any{
			"account": account.Public(),
			"warning": "notification email could not be delivered",
		})
	}

	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"account": account.Public(),
	})
}

func (a *AccountController) Show(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	account, err := a.Service.GetByID(ctx.Context(), id)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account.Public(),
	})
}

// UpdatePayload is the profile update body; absent fields stay untouched.
type UpdatePayload struct {
	Email          *string `json:"email" form:"email"`
	Nickname       *string `json:"nickname" form:"nickname"`
	FirstName      *string `json:"first_name" form:"first_name"`
	LastName       *string `json:"last_name" form:"last_name"`
	Bio            *string `json:"bio" form:"bio"`
	Phone          *string `json:"phone_number" form:"phone_number"`
	ProfilePicture *string `json:"profile_picture" form:"profile_picture"`
	Role           *string `json:"role" form:"role"`
}

func (a *AccountController) Update(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update account parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	account, err := a.Service.Update(ctx.Context(), id, UpdateInput{
		Email:          payload.Email,
		Nickname:       payload.Nickname,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Bio:            payload.Bio,
		Phone:          payload.Phone,
		ProfilePicture: payload.ProfilePicture,
		Role:           payload.Role,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account.Public(),
	})
}

func (a *AccountController) Destroy(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	ok, err := a.Service.Delete(ctx.Context(), id)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if !ok {
		return ctx.JSON(router.StatusNotFound, map[string]any{
			"error": "account not found",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"deleted": true,
	})
}

func (a *AccountController) Unlock(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	ok, err := a.Service.Unlock(ctx.Context(), id)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if !ok {
		return ctx.JSON(router.StatusNotFound, map[string]any{
			"error": "account not found",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"unlocked": true,
	})
}

// ResetPasswordPayload carries the replacement password.
type ResetPasswordPayload struct {
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AccountController) ResetPassword(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "invalid account id",
		})
	}

	payload := new(ResetPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": "failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"validation": formatValidationErrors(err),
		})
	}

	ok, err := a.Service.ResetPassword(ctx.Context(), id, payload.Password)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if !ok {
		return ctx.JSON(router.StatusNotFound, map[string]any{
			"error": "account not found",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"reset": true,
	})
}

func (a *AccountController) Index(ctx router.Context) error {
	skip := queryInt(ctx, "skip", 0)
	limit := queryInt(ctx, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	records, err := a.Service.List(ctx.Context(), skip, limit)
	if err != nil {
		return a.renderError(ctx, err)
	}

	total, err := a.Service.Count(ctx.Context())
	if err != nil {
		return a.renderError(ctx, err)
	}

	items := make([]*PublicAccount, 0, len(records))
	for _, r := range records {
		items = append(items, r.Public())
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"skip":  skip,
		"limit": limit,
	})
}

func (a *AccountController) renderError(ctx router.Context, err error) error {
	status := router.StatusInternalServerError
	message := "internal error"

	switch {
	case IsValidation(err):
		status = router.StatusBadRequest
		message = err.Error()
	case IsConflict(err):
		status = router.StatusConflict
		message = err.Error()
	case IsNotFound(err):
		status = router.StatusNotFound
		message = "account not found"
	default:
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.Category == goerrors.CategoryAuth {
			status = router.StatusUnauthorized
			message = "invalid credentials"
		} else {
			a.Logger.Error("unhandled controller error", "error", err)
		}
	}

	return ctx.JSON(status, map[string]any{
		"error": message,
	})
}

func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}

	var fields validation.Errors
	if stderrors.As(err, &fields) {
		for name, ferr := range fields {
			if ferr != nil {
				out[name] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}

func queryInt(ctx router.Context, key string, def int) int {
	raw := ctx.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
