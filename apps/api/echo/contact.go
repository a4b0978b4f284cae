package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

type contactApi struct {
	mailSvc core.EmailService
}

func registerContactAPI(g *echo.Group, mailSvc core.EmailService) {
	api := contactApi{mailSvc: mailSvc}
	g.POST("/contact", api.send)
}

func (api *contactApi) send(ctx echo.Context) error {
	var data contactRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to contactRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	api.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{core.Conf.AdminEmailAddress()},
		Subject:      data.Subject,
		TemplateName: "contact",
		TemplateData: struct {
			Name    string
			Email   string
			Subject string
			Message string
		}{
			Name:    data.Name,
			Email:   data.Email,
			Subject: data.Subject,
			Message: data.Message,
		},
	})
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Thank you for reaching out. We will get back to you shortly."})
}

type contactRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required"`
}

func (r *contactRequest) Validate() error {
	r.Name = core.CleanString(r.Name)
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.Subject = core.CleanString(r.Subject)
	r.Message = core.CleanString(r.Message)
	return core.Validate.Struct(r)
}
