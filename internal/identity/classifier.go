package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Classifier resolves an image to a gender. Implementations must fail safe:
// if classification is impossible for any reason they return GenderUnknown
// with a nil error so the caller can proceed (the participant simply stays
// barred from gendered queues).
type Classifier interface {
	Classify(ctx context.Context, imageBase64 string) (Gender, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, imageBase64 string) (Gender, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, imageBase64 string) (Gender, error) {
	return f(ctx, imageBase64)
}

// HTTPClassifier calls an external classification service. The image is sent
// once and never stored; only the resulting gender label survives the call.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Classify posts the image to the classifier service and parses the result.
// Every failure path returns GenderUnknown with a nil error.
func (c *HTTPClassifier) Classify(ctx context.Context, imageBase64 string) (Gender, error) {
	body, err := json.Marshal(map[string]string{"image_base64": imageBase64})
	if err != nil {
		return GenderUnknown, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return GenderUnknown, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[classifier] request failed: %v (treating as unknown)", err)
		return GenderUnknown, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[classifier] unexpected status %d (treating as unknown)", resp.StatusCode)
		return GenderUnknown, nil
	}

	var result struct {
		Gender string `json:"gender"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("[classifier] decode failed: %v (treating as unknown)", err)
		return GenderUnknown, nil
	}

	return ParseGender(result.Gender), nil
}
