package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

func ValidateProduct(name, description string, price float64, stockLevel int, imageURL string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > 200 {
		return fmt.Errorf("%w: name must be <= 200 chars", ErrInvalidInput)
	}
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidInput)
	}
	if stockLevel < 0 {
		return fmt.Errorf("%w: stock_level must be >= 0", ErrInvalidInput)
	}
	if imageURL != "" {
		parsed, err := url.Parse(imageURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("%w: invalid image_url", ErrInvalidInput)
		}
	}
	return nil
}

func ValidateUserID(v string) error {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if len(trimmed) > 128 {
		return fmt.Errorf("%w: user_id must be <= 128 chars", ErrInvalidInput)
	}
	return nil
}
