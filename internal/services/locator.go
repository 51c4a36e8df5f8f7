package services

import (
	"fmt"
	"regexp"
	"strings"
)

// catalogIDPatterns match the product ID in the URL shapes seen in search results.
var catalogIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/dp/([A-Za-z0-9]{10})(?:[/?#]|$)`),
	regexp.MustCompile(`/gp/product/([A-Za-z0-9]{10})(?:[/?#]|$)`),
	regexp.MustCompile(`/gp/aw/d/([A-Za-z0-9]{10})(?:[/?#]|$)`),
	regexp.MustCompile(`/product/([A-Za-z0-9]{10})(?:[/?#]|$)`),
	regexp.MustCompile(`/ASIN/([A-Za-z0-9]{10})(?:[/?#]|$)`),
	regexp.MustCompile(`[?&]asin=([A-Za-z0-9]{10})(?:[&#]|$)`),
}

// LocatorExtractionError is returned when no catalog ID can be found in a product URL.
type LocatorExtractionError struct {
	URL string
}

func (e *LocatorExtractionError) Error() string {
	return fmt.Sprintf("could not extract product id from url %q", e.URL)
}

// ExtractProductID returns the 10 character catalog ID of a product URL.
func ExtractProductID(productURL string) (string, error) {
	for _, pattern := range catalogIDPatterns {
		if m := pattern.FindStringSubmatch(productURL); m != nil {
			return strings.ToUpper(m[1]), nil
		}
	}
	return "", &LocatorExtractionError{URL: productURL}
}

// LocatorVariants returns the ordered, de-duplicated product locators to try
// for a product URL.
func LocatorVariants(productURL string) ([]string, error) {
	id, err := ExtractProductID(productURL)
	if err != nil {
		return nil, err
	}
	cleanURL := "https://www.amazon.com/dp/" + id
	candidates := []string{
		"amazon:" + id,
		"amazon:" + cleanURL,
		id,
		"amazon:" + strings.TrimSpace(productURL),
		cleanURL,
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		variants = append(variants, candidate)
	}
	return variants, nil
}
