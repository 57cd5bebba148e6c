package ongekinet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

var ErrLoginFailed = fmt.Errorf("login rejected by the site")

// Login drives the scripted login flow: credential form, the aime
// confirmation submit, then cookie harvest. it does not retry, the
// caller's policy on auth failure is to abort or re-drive the whole
// flow itself.
func (c *Client) Login(ctx context.Context) (Credentials, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	slog.InfoContext(ctx, "logging in")

	res, err := c.LoginHttp.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return Credentials{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return Credentials{}, err
	}

	loginForm := doc.Find("input[name=segaId]").Closest("form")
	if len(loginForm.Nodes) == 0 {
		span.SetStatus(codes.Error, "login form not found")
		return Credentials{}, fmt.Errorf("could not find login form")
	}
	formData := hiddenFormData(loginForm)
	formData["segaId"] = c.username
	formData["password"] = c.password

	res, err = c.LoginHttp.R().
		SetContext(ctx).
		SetFormData(formData).
		Post(loginForm.AttrOr("action", "/"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return Credentials{}, err
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse post-login page")
		return Credentials{}, err
	}

	// the credential form comes back on failure, landing page does not
	// carry it
	if len(doc.Find(".login_block").Nodes) > 0 {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return Credentials{}, ErrLoginFailed
	}

	aimeForm := doc.Find(`form[action$="aimeList/submit/"]`)
	if len(aimeForm.Nodes) == 0 {
		span.SetStatus(codes.Error, "aime confirmation form not found")
		return Credentials{}, fmt.Errorf("could not find aime confirmation form")
	}
	res, err = c.LoginHttp.R().
		SetContext(ctx).
		SetFormData(hiddenFormData(aimeForm)).
		Post(aimeForm.AttrOr("action", ""))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit aime confirmation")
		return Credentials{}, err
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse home page")
		return Credentials{}, err
	}

	if len(doc.Find(".user_data_container").Nodes) == 0 {
		span.SetStatus(codes.Error, "user data container missing after login")
		return Credentials{}, fmt.Errorf("could not find user data after login")
	}

	var creds Credentials
	for _, cookie := range c.LoginHttp.GetClient().Jar.Cookies(c.BaseUrl) {
		switch cookie.Name {
		case "_t":
			creds.Token = cookie.Value
		case "userId":
			creds.UserID = cookie.Value
		case "friendCodeList":
			creds.FriendCodeList = cookie.Value
		}
	}
	if creds.Token == "" {
		span.SetStatus(codes.Error, "session cookie missing after login")
		return Credentials{}, fmt.Errorf("session cookie was not set after login")
	}

	slog.InfoContext(ctx, "login complete")
	return creds, nil
}

func hiddenFormData(form *goquery.Selection) map[string]string {
	data := map[string]string{}
	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		data[name] = input.AttrOr("value", "")
	})
	return data
}
