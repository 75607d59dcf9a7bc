// Package packages wraps the backend's reusable package endpoints and the QR
// codes printed on them.
package packages

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
)

var (
	ErrNoItems       = errors.New("package has no items")
	ErrItemQuantity  = errors.New("item quantity must be positive")
	ErrInvalidStatus = errors.New("unknown package status")
	ErrEmptyID       = errors.New("package id is empty")
	ErrNoQRItems     = errors.New("no item ids to generate QR codes for")
)

// Client is the subset of the API client the package service uses.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Draft holds the fields a client may set on a package. The backend assigns
// the id and timestamps.
type Draft struct {
	UserID     string              `json:"userId,omitempty"`
	Items      []model.PackageItem `json:"items"`
	TotalPrice int64               `json:"totalPrice"`
	Status     model.PackageStatus `json:"status,omitempty"`
}

func (d Draft) check() error {
	if len(d.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: %s", ErrItemQuantity, it.ProductID)
		}
	}
	if d.Status != "" && !d.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	return nil
}

// DraftOf copies the editable fields of p.
func DraftOf(p model.Package) Draft {
	items := make([]model.PackageItem, len(p.Items))
	copy(items, p.Items)
	return Draft{UserID: p.UserID, Items: items, TotalPrice: p.TotalPrice, Status: p.Status}
}

type Service struct {
	api Client
}

func NewService(api Client) *Service {
	return &Service{api: api}
}

func path(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyID
	}
	return "package/" + url.PathEscape(id), nil
}

func (s *Service) List(ctx context.Context) ([]model.Package, error) {
	var out []model.Package
	if err := s.api.Get(ctx, "package", nil, &out); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Package, error) {
	var out model.Package
	p, err := path(id)
	if err != nil {
		return out, err
	}
	if err := s.api.Get(ctx, p, nil, &out); err != nil {
		return out, fmt.Errorf("get package %s: %w", id, err)
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, d Draft) (model.Package, error) {
	var out model.Package
	if err := d.check(); err != nil {
		return out, err
	}
	if err := s.api.Post(ctx, "package", d, &out); err != nil {
		return out, fmt.Errorf("create package: %w", err)
	}
	logging.Logg.Info("Package created", "id", out.ID, "items", len(out.Items))
	return out, nil
}

// Update replaces the editable fields of package id with d.
func (s *Service) Update(ctx context.Context, id string, d Draft) (model.Package, error) {
	var out model.Package
	p, err := path(id)
	if err != nil {
		return out, err
	}
	if err := d.check(); err != nil {
		return out, err
	}
	if err := s.api.Put(ctx, p, d, &out); err != nil {
		return out, fmt.Errorf("update package %s: %w", id, err)
	}
	return out, nil
}

// SetStatus moves a package to status, keeping its other fields.
func (s *Service) SetStatus(ctx context.Context, id string, status model.PackageStatus) (model.Package, error) {
	if !status.Valid() {
		return model.Package{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Package{}, err
	}
	d := DraftOf(current)
	d.Status = status
	return s.Update(ctx, id, d)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := path(id)
	if err != nil {
		return err
	}
	if err := s.api.Delete(ctx, p, nil); err != nil {
		return fmt.Errorf("delete package %s: %w", id, err)
	}
	logging.Logg.Info("Package deleted", "id", id)
	return nil
}

// GenerateQR asks the backend for QR codes of the given items. Results are
// per item; the call fails only when no code could be generated.
func (s *Service) GenerateQR(ctx context.Context, itemUIDs []string) ([]model.QRCodeResult, error) {
	if len(itemUIDs) == 0 {
		return nil, ErrNoQRItems
	}
	var out []model.QRCodeResult
	body := map[string][]string{"itemUids": itemUIDs}
	if err := s.api.Post(ctx, "qr-codes/generate", body, &out); err != nil {
		return nil, fmt.Errorf("generate QR codes: %w", err)
	}
	failed := 0
	for _, r := range out {
		if r.Status != "success" {
			failed++
		}
	}
	if failed > 0 {
		logging.Logg.Warn("Some QR codes were not generated", "failed", failed, "total", len(out))
	}
	return out, nil
}
