package dto

import (
	"strings"

	"github.com/visuluxe/visuluxe/internal/api/validation"
)

type CreateProviderRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	BaseURL    string `json:"base_url"`
	ModelsPath string `json:"models_path,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
}

func (r *CreateProviderRequest) Validate() map[string]string {
	errors := make(map[string]string)

	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > 128 {
		errors["name"] = "Name must be at most 128 characters"
	}

	r.Slug = strings.TrimSpace(strings.ToLower(r.Slug))
	if r.Slug == "" {
		errors["slug"] = "Slug is required"
	} else if !validation.IsValidSlug(r.Slug) {
		errors["slug"] = "Slug must be lowercase letters, numbers and hyphens"
	}

	r.BaseURL = strings.TrimSpace(r.BaseURL)
	if r.BaseURL == "" {
		errors["base_url"] = "Base URL is required"
	} else if !strings.HasPrefix(r.BaseURL, "http://") && !strings.HasPrefix(r.BaseURL, "https://") {
		errors["base_url"] = "Base URL must start with http:// or https://"
	}

	return errors
}

type UpdateProviderRequest struct {
	Name       *string `json:"name,omitempty"`
	BaseURL    *string `json:"base_url,omitempty"`
	ModelsPath *string `json:"models_path,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
	APIKey     *string `json:"api_key,omitempty"`
}

func (r *UpdateProviderRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		if trimmed == "" {
			errors["name"] = "Name cannot be empty"
		} else if len(trimmed) > 128 {
			errors["name"] = "Name must be at most 128 characters"
		}
		*r.Name = trimmed
	}

	if r.BaseURL != nil {
		trimmed := strings.TrimSpace(*r.BaseURL)
		if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
			errors["base_url"] = "Base URL must start with http:// or https://"
		}
		*r.BaseURL = trimmed
	}

	return errors
}

// ProviderDTO is the display-safe view of a provider. The stored API key
// never leaves the server through this type; only its masked form does.
type ProviderDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	BaseURL     string  `json:"base_url"`
	ModelsPath  string  `json:"models_path"`
	IsActive    bool    `json:"is_active"`
	HasKey      bool    `json:"has_key"`
	IsEncrypted bool    `json:"is_encrypted"`
	MaskedKey   *string `json:"masked_key,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}
