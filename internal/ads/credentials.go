package ads

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rusq/osenv/v2"
	"gopkg.in/yaml.v3"
)

// Credentials mirrors the keys of a google-ads.yaml file.
type Credentials struct {
	DeveloperToken    string `yaml:"developer_token"`
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	RefreshToken      string `yaml:"refresh_token"`
	LoginCustomerID   string `yaml:"login_customer_id"`
	JSONKeyFilePath   string `yaml:"json_key_file_path"`
	ImpersonatedEmail string `yaml:"impersonated_email"`
}

// LoadCredentials reads path, if it exists, then applies GOOGLE_ADS_*
// environment overrides. A missing file is not an error.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return c, fmt.Errorf("failed to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return c, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	c.DeveloperToken = osenv.Value("GOOGLE_ADS_DEVELOPER_TOKEN", c.DeveloperToken)
	c.ClientID = osenv.Value("GOOGLE_ADS_CLIENT_ID", c.ClientID)
	c.ClientSecret = osenv.Value("GOOGLE_ADS_CLIENT_SECRET", c.ClientSecret)
	c.RefreshToken = osenv.Value("GOOGLE_ADS_REFRESH_TOKEN", c.RefreshToken)
	c.LoginCustomerID = osenv.Value("GOOGLE_ADS_LOGIN_CUSTOMER_ID", c.LoginCustomerID)
	c.JSONKeyFilePath = osenv.Value("GOOGLE_ADS_JSON_KEY_FILE_PATH", c.JSONKeyFilePath)
	c.ImpersonatedEmail = osenv.Value("GOOGLE_ADS_IMPERSONATED_EMAIL", c.ImpersonatedEmail)

	return c, nil
}

// Validate reports the first missing piece needed to call the API on the
// server's own behalf.
func (c Credentials) Validate() error {
	if c.DeveloperToken == "" {
		return ErrMissingDeveloperToken
	}
	if c.JSONKeyFilePath != "" {
		return nil
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return ErrMissingCredentials
	}
	return nil
}
