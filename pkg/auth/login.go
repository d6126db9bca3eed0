package auth

import (
	"context"
	"time"

	"igparser/pkg/browser"
	"igparser/pkg/config"
	"igparser/pkg/errors"
	"igparser/pkg/instagram"
	"igparser/pkg/logger"
	"igparser/pkg/models"
	"igparser/pkg/ratelimit"
)

const (
	loginPollInterval = 250 * time.Millisecond
	popupAttempts     = 2
)

// LoginResult is the outcome of a login attempt. A rejected login is not an
// error; Reason says why it was rejected.
type LoginResult struct {
	OK       bool
	Reason   instagram.LoginOutcome
	Warnings []models.Warning
}

// Authenticator signs the browser session in through the login form
type Authenticator struct {
	page    browser.Page
	pacer   *ratelimit.Pacer
	cfg     config.BrowserConfig
	baseURL string
	logger  logger.Logger
}

// NewAuthenticator creates an Authenticator driving page
func NewAuthenticator(page browser.Page, pacer *ratelimit.Pacer, cfg *config.Config, log logger.Logger) *Authenticator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Authenticator{
		page:    page,
		pacer:   pacer,
		cfg:     cfg.Browser,
		baseURL: cfg.Instagram.BaseURL,
		logger:  log.WithField("component", "auth"),
	}
}

// Login fills in and submits the login form, then classifies where the
// browser lands. Errors are returned only when the form itself could not be
// driven; popups left open after a successful login become warnings.
func (a *Authenticator) Login(ctx context.Context, username, password string) (LoginResult, error) {
	log := a.logger.WithField("username", username)
	log.Info("Logging in to Instagram")

	if err := a.pacer.BeforeNavigation(ctx); err != nil {
		return LoginResult{}, err
	}
	if err := a.page.Navigate(ctx, instagram.GetLoginURL(a.baseURL), a.cfg.NavigationTimeout); err != nil {
		return LoginResult{}, errors.Wrap(errors.ErrorTypeAuth, "open_login", err)
	}
	if err := a.page.WaitVisible(ctx, instagram.UsernameInputSelector, a.cfg.SelectorTimeout); err != nil {
		return LoginResult{}, errors.Wrap(errors.ErrorTypeAuth, "wait_login_form", err)
	}
	if err := a.pacer.Delay(ctx, a.cfg.LoginSettleDelay); err != nil {
		return LoginResult{}, err
	}

	if err := a.page.SendKeys(ctx, instagram.UsernameInputSelector, username); err != nil {
		return LoginResult{}, errors.Wrap(errors.ErrorTypeAuth, "type_username", err)
	}
	if err := a.page.SendKeys(ctx, instagram.PasswordInputSelector, password); err != nil {
		return LoginResult{}, errors.Wrap(errors.ErrorTypeAuth, "type_password", err)
	}
	if err := a.page.Click(ctx, instagram.SubmitButtonSelector); err != nil {
		return LoginResult{}, errors.Wrap(errors.ErrorTypeAuth, "submit_login", err)
	}

	current, err := a.waitForRedirect(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	outcome := instagram.ClassifyLoginURL(current)
	if outcome != instagram.LoginSucceeded {
		log.ErrorWithFields("Login rejected", map[string]interface{}{
			"reason": outcome,
			"url":    current,
		})
		return LoginResult{Reason: outcome}, nil
	}

	log.Info("Logged in to Instagram")
	return LoginResult{OK: true, Reason: outcome, Warnings: a.dismissPopups(ctx)}, nil
}

// waitForRedirect polls the page URL until it leaves the login form or
// LoginTimeout passes, and returns the last URL seen
func (a *Authenticator) waitForRedirect(ctx context.Context) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
	defer cancel()

	var current string
	for {
		u, err := a.page.URL(ctx)
		if err != nil {
			return "", errors.Wrap(errors.ErrorTypeAuth, "read_login_url", err)
		}
		current = u
		if instagram.ClassifyLoginURL(current) != instagram.LoginBadCredentials {
			return current, nil
		}

		if err := ratelimit.Sleep(waitCtx, loginPollInterval); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			a.logger.DebugWithFields("Login redirect timed out", map[string]interface{}{"url": current})
			return current, nil
		}
	}
}

// dismissPopups closes the "save login info" and "notifications" dialogs
func (a *Authenticator) dismissPopups(ctx context.Context) []models.Warning {
	var warnings []models.Warning

	for i := 0; i < popupAttempts; i++ {
		if err := a.pacer.Delay(ctx, a.cfg.PopupDelay); err != nil {
			warnings = append(warnings, models.NewWarning("dismiss_popup", err))
			break
		}

		clicked, err := a.page.ClickButtonWithText(ctx, instagram.PopupDismissTexts, a.cfg.SelectorTimeout)
		switch {
		case err != nil:
			warnings = append(warnings, models.NewWarning("dismiss_popup", err))
			a.logger.WithError(err).Debug("Popup not dismissed")
		case clicked:
			a.logger.DebugWithFields("Popup dismissed", map[string]interface{}{"attempt": i + 1})
		}
	}

	return warnings
}
