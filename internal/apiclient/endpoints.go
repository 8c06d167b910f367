package apiclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/sat-prep/web/internal/models"
)

// Login exchanges credentials for session tokens. Rejected credentials come
// back as a response with Auth false rather than an error.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/login",
		body:   models.LoginRequest{Email: email, Password: password},
	}, &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return &models.LoginResponse{Auth: false, Error: apiErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Auth && (out.SessionData == "" || out.AccessToken == "") {
		return nil, errors.Wrap(ErrInvalidResponse, "login succeeded without tokens")
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context, token string) (*models.Profile, error) {
	var out models.Profile
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/getProfile", token: token}, &out); err != nil {
		return nil, errors.Wrap(err, "get profile")
	}
	return &out, nil
}

func (c *Client) Performance(ctx context.Context, token string) (*models.Performance, error) {
	var out models.Performance
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/performance", token: token}, &out); err != nil {
		return nil, errors.Wrap(err, "get performance")
	}
	return &out, nil
}

func (c *Client) GetQuestions(ctx context.Context, token, category string, classes []string) (*models.GetQuestionsResponse, error) {
	var out models.GetQuestionsResponse
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/getQuestions",
		token:  token,
		body:   models.GetQuestionsRequest{QuestionCategory: category, PrimaryClassCD: classes},
	}, &out)
	if err != nil {
		return nil, errors.Wrap(err, "get questions")
	}
	return &out, nil
}

// GetQuestion fetches the content for one question. The remote answers with
// an array whose first element is the question; the body is checked against
// the question schema before it is decoded.
func (c *Client) GetQuestion(ctx context.Context, token, externalID string) (*models.QuestionContent, error) {
	var raw json.RawMessage
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/question/",
		token:  token,
		body:   models.GetQuestionRequest{ExternalID: externalID},
	}, &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "get question %s", externalID)
	}

	if err := validateQuestion(raw); err != nil {
		return nil, errors.Wrapf(err, "question %s", externalID)
	}

	var items []models.QuestionContent
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrapf(ErrInvalidResponse, "question %s: %v", externalID, err)
	}
	if len(items) == 0 {
		return nil, errors.Wrapf(ErrQuestionNotFound, "question %s", externalID)
	}
	q := items[0]
	if q.ExternalID == "" {
		q.ExternalID = externalID
	}
	return &q, nil
}

// SubmitResult posts one question's scoring data. It is retried on transient
// failures and carries an idempotency key so the remote can drop repeats.
func (c *Client) SubmitResult(ctx context.Context, token string, result models.SubmitResultRequest) error {
	err := c.doWithRetry(ctx, request{
		method:  http.MethodPost,
		path:    "/submitResult",
		token:   token,
		headers: map[string]string{"Idempotency-Key": IdempotencyKey(result.ExamID, result.ExternalID, len(result.Attempts))},
		body:    result,
	}, nil)
	return errors.Wrapf(err, "submit result %s", result.ExternalID)
}

// MarkAsReview adds or removes a review mark. Both operations are set
// semantics on the remote, so repeating one is harmless.
func (c *Client) MarkAsReview(ctx context.Context, token, externalID string, op models.ReviewOperation) (*models.MarkReviewResponse, error) {
	var out models.MarkReviewResponse
	err := c.doWithRetry(ctx, request{
		method: http.MethodPost,
		path:   "/markAsReview",
		token:  token,
		body:   models.MarkReviewRequest{ExternalID: externalID, Operation: op},
	}, &out)
	if err != nil {
		return nil, errors.Wrapf(err, "mark %s %s", externalID, op)
	}
	return &out, nil
}

// IdempotencyKey derives a stable key for one submission of a question within
// one exam. Attempts only grow, so a revisited question that gains an attempt
// is sent under a new key while retries of the same payload share one.
func IdempotencyKey(examID, externalID string, attempts int) string {
	sum := blake2b.Sum256([]byte(strings.Join([]string{examID, externalID, strconv.Itoa(attempts)}, "\x00")))
	return hex.EncodeToString(sum[:16])
}
