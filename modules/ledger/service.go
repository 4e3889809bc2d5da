package ledger

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/guarzo/ledgerapi/common"
	"github.com/guarzo/ledgerapi/common/model"
	"github.com/guarzo/ledgerapi/modules/api"
)

// LedgerService is a higher-level interface for the ledger backend's user and product routes.
type LedgerService interface {
	Login(ctx context.Context, req model.LoginRequest) error
	Register(ctx context.Context, req model.RegisterRequest) error
	Me(ctx context.Context) (*model.User, error)
	ValidateSession(ctx context.Context) error
	CurrentUserID(ctx context.Context) (string, error)

	ListProducts(ctx context.Context, userID string) ([]model.Product, error)
	// CreateProduct and UpdateProduct never return a nil product with a nil error.
	// When the backend answers with an empty body the product is zero-valued.
	CreateProduct(ctx context.Context, in model.ProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id string, in model.ProductInput, image *Image) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Image is an optional picture attached to a product update.
type Image struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

type ledgerService struct {
	client   api.ApiClient
	tokenTTL time.Duration
	logger   zerolog.Logger
}

// NewLedgerService constructs a LedgerService. A zero tokenTTL means common.DefaultTokenTTL.
func NewLedgerService(client api.ApiClient, tokenTTL time.Duration, logger zerolog.Logger) LedgerService {
	if tokenTTL <= 0 {
		tokenTTL = common.DefaultTokenTTL
	}
	return &ledgerService{
		client:   client,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Login authenticates and stores the returned token.
func (s *ledgerService) Login(ctx context.Context, req model.LoginRequest) error {
	resp, err := s.client.Post(ctx, "/user/login", api.JSON(req))
	if err != nil {
		return err
	}

	var tr model.TokenResponse
	if err := resp.DecodeJSON(&tr); err != nil {
		return err
	}
	if tr.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	if err := s.client.Store().Set(ctx, tr.Token, s.tokenTTL); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	s.logger.Info().Str("email", req.Email).Msg("login successful")
	return nil
}

func (s *ledgerService) Register(ctx context.Context, req model.RegisterRequest) error {
	if _, err := s.client.Post(ctx, "/user/register", api.JSON(req)); err != nil {
		return err
	}
	s.logger.Info().Str("email", req.Email).Msg("registration successful")
	return nil
}

func (s *ledgerService) Me(ctx context.Context) (*model.User, error) {
	resp, err := s.client.Get(ctx, "/user/me")
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := resp.DecodeJSON(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ValidateSession checks the stored token with the backend. Without a stored
// token it makes no call: the session-expired hook runs and it fails with
// common.ErrUnauthenticated.
func (s *ledgerService) ValidateSession(ctx context.Context) error {
	if _, found, err := s.client.Store().Get(ctx); err != nil || !found {
		return s.noSession(err)
	}
	_, err := s.client.Get(ctx, "/user/validate-jwt")
	return err
}

// CurrentUserID reads the user id out of the stored token. Without one it
// behaves like ValidateSession.
func (s *ledgerService) CurrentUserID(ctx context.Context) (string, error) {
	token, found, err := s.client.Store().Get(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return "", s.noSession(nil)
	}
	return UserIDFromToken(token)
}

func (s *ledgerService) noSession(cause error) error {
	s.logger.Info().Msg("no stored session, log in again")
	s.client.SessionExpired()
	return &common.UnauthenticatedError{Original: errNoToken, Cause: cause}
}

func (s *ledgerService) ListProducts(ctx context.Context, userID string) ([]model.Product, error) {
	resp, err := s.client.Get(ctx, "/product/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}
	var products []model.Product
	if err := resp.DecodeJSON(&products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *ledgerService) CreateProduct(ctx context.Context, in model.ProductInput) (*model.Product, error) {
	resp, err := s.client.Post(ctx, "/product", api.JSON(in))
	if err != nil {
		return nil, err
	}
	return decodeProduct(resp)
}

// UpdateProduct sends the product as multipart form data. image may be nil to keep the current one.
func (s *ledgerService) UpdateProduct(ctx context.Context, id string, in model.ProductInput, image *Image) (*model.Product, error) {
	var files []api.File
	if image != nil {
		files = append(files, api.File{
			Field:       "image",
			Filename:    image.Filename,
			ContentType: image.ContentType,
			Content:     image.Content,
		})
	}

	resp, err := s.client.Put(ctx, "/product/"+url.PathEscape(id), api.Multipart(in.FormFields(), files...))
	if err != nil {
		return nil, err
	}
	return decodeProduct(resp)
}

func (s *ledgerService) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, "/product/"+url.PathEscape(id))
	return err
}

// decodeProduct tolerates an empty body, which some write routes return,
// by returning a zero product.
func decodeProduct(resp *api.Response) (*model.Product, error) {
	if len(resp.Body) == 0 {
		return &model.Product{}, nil
	}
	var p model.Product
	if err := resp.DecodeJSON(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
