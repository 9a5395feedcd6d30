package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules that span several fields.
// It expects ApplyDefaults to have run.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Admin.Enabled && cfg.Admin.JWT.Secret == "" {
		return fmt.Errorf("admin.jwt.secret is required when the admin API is enabled")
	}

	seen := make(map[string]struct{}, len(cfg.Mounts))
	for i := range cfg.Mounts {
		mc := &cfg.Mounts[i]
		if _, dup := seen[mc.Name]; dup {
			return fmt.Errorf("mounts[%d]: duplicate mount name %q", i, mc.Name)
		}
		seen[mc.Name] = struct{}{}

		if err := mc.Account.Validate(); err != nil {
			return fmt.Errorf("mounts[%d] (%s): %w", i, mc.Name, err)
		}
		if _, _, err := mc.Specs(); err != nil {
			return fmt.Errorf("mounts[%d]: %w", i, err)
		}
		if mc.Share != "" && strings.ContainsAny(mc.Share, `\/`) {
			return fmt.Errorf("mounts[%d] (%s): share name %q must not contain path separators", i, mc.Name, mc.Share)
		}
	}

	return nil
}

// formatValidationError turns validator errors into one readable line per
// failing field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
