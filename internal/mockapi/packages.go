package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrPackageInvalid  = errors.New("invalid package")
)

type packageBody struct {
	UserID     string              `json:"userId"`
	Items      []model.PackageItem `json:"items"`
	TotalPrice int64               `json:"totalPrice"`
	Status     model.PackageStatus `json:"status"`
}

func (b packageBody) check() error {
	if len(b.Items) == 0 {
		return fmt.Errorf("%w: items are required", ErrPackageInvalid)
	}
	for _, it := range b.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return fmt.Errorf("%w: every item needs a productId and a positive quantity", ErrPackageInvalid)
		}
	}
	if b.TotalPrice < 0 {
		return fmt.Errorf("%w: totalPrice is negative", ErrPackageInvalid)
	}
	if b.Status != "" && !b.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrPackageInvalid, b.Status)
	}
	return nil
}

func canSee(a account, p *model.Package) bool {
	return a.Role == model.RoleAdmin || p.UserID == a.ID
}

// Packages lists the packages visible to a, oldest first.
func (s *State) Packages(a account) []model.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Package, 0, len(s.packages))
	for _, p := range s.packages {
		if canSee(a, p) {
			out = append(out, clonePackage(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) Package(a account, id string) (model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok || !canSee(a, p) {
		return model.Package{}, ErrPackageNotFound
	}
	return clonePackage(p), nil
}

// CreatePackage stores a new package owned by a. Only administrators may
// create packages on behalf of another user.
func (s *State) CreatePackage(a account, b packageBody) (model.Package, error) {
	if err := b.check(); err != nil {
		return model.Package{}, err
	}
	owner := a.ID
	if a.Role == model.RoleAdmin && b.UserID != "" {
		owner = b.UserID
	}
	if b.Status == "" {
		b.Status = model.PackageActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkgSeq++
	now := s.now().UTC()
	p := &model.Package{
		ID:         fmt.Sprintf("PKG-%03d", s.pkgSeq),
		UserID:     owner,
		Items:      append([]model.PackageItem(nil), b.Items...),
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.packages[p.ID] = p
	return clonePackage(p), nil
}

func (s *State) UpdatePackage(a account, id string, b packageBody) (model.Package, error) {
	if err := b.check(); err != nil {
		return model.Package{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok || !canSee(a, p) {
		return model.Package{}, ErrPackageNotFound
	}
	p.Items = append([]model.PackageItem(nil), b.Items...)
	p.TotalPrice = b.TotalPrice
	if b.Status != "" {
		p.Status = b.Status
	}
	p.UpdatedAt = s.now().UTC()
	return clonePackage(p), nil
}

func (s *State) DeletePackage(a account, id string) (model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok || !canSee(a, p) {
		return model.Package{}, ErrPackageNotFound
	}
	delete(s.packages, id)
	return clonePackage(p), nil
}

func clonePackage(p *model.Package) model.Package {
	c := *p
	c.Items = append([]model.PackageItem(nil), p.Items...)
	return c
}

func (s *Server) writePackage(w http.ResponseWriter, status int, p model.Package, err error) {
	switch {
	case errors.Is(err, ErrPackageNotFound):
		writeError(w, http.StatusNotFound, "Package not found")
	case errors.Is(err, ErrPackageInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		logging.Logg.Error("Package operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeData(w, status, p)
	}
}

func decodePackage(w http.ResponseWriter, r *http.Request) (packageBody, bool) {
	var b packageBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "Bad request format")
		return b, false
	}
	return b, true
}

func (s *Server) ListPackages(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, s.State.Packages(a))
}

func (s *Server) GetPackage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	p, err := s.State.Package(a, chi.URLParam(r, "id"))
	s.writePackage(w, http.StatusOK, p, err)
}

func (s *Server) CreatePackage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	b, ok := decodePackage(w, r)
	if !ok {
		return
	}
	p, err := s.State.CreatePackage(a, b)
	if err == nil {
		logging.Logg.Info("Package created", "id", p.ID, "owner", p.UserID)
	}
	s.writePackage(w, http.StatusCreated, p, err)
}

func (s *Server) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	b, ok := decodePackage(w, r)
	if !ok {
		return
	}
	p, err := s.State.UpdatePackage(a, chi.URLParam(r, "id"), b)
	s.writePackage(w, http.StatusOK, p, err)
}

func (s *Server) DeletePackage(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	p, err := s.State.DeletePackage(a, chi.URLParam(r, "id"))
	s.writePackage(w, http.StatusOK, p, err)
}

type qrEnvelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    []model.QRCodeResult `json:"data"`
}

// GenerateQR returns, per item, the URL its QR code encodes. Rendering the
// image is left to the caller's QR library.
func (s *Server) GenerateQR(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	var body struct {
		ItemUIDs []string `json:"itemUids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ItemUIDs) == 0 {
		writeError(w, http.StatusBadRequest, "itemUids are required")
		return
	}

	out := qrEnvelope{Data: make([]model.QRCodeResult, 0, len(body.ItemUIDs))}
	generated := 0
	for _, id := range body.ItemUIDs {
		if _, err := s.State.Package(a, id); err != nil {
			out.Data = append(out.Data, model.QRCodeResult{ItemUID: id, Status: "error", Error: "Failed to generate QR code"})
			continue
		}
		generated++
		out.Data = append(out.Data, model.QRCodeResult{
			ItemUID:   id,
			QRCodeURL: "http://" + r.Host + "/package/" + id,
			Status:    "success",
		})
	}
	out.Success = generated > 0
	if generated == len(out.Data) {
		out.Message = "All QR codes generated successfully"
	} else {
		out.Message = fmt.Sprintf("Generated %d of %d QR codes", generated, len(out.Data))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(out)
}
