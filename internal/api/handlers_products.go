package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/internal/validation"
	"github.com/org/servercatalog/pkg/models"
)

// productPayload decodes the request body into a field map for validation.
// An empty or non-object body is a validation failure.
func productPayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	if !requireJSON(w, r) {
		return nil, false
	}
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil || data == nil {
		writeValidation(w, []string{"body must be a JSON object"})
		return nil, false
	}
	return data, true
}

func productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := validation.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeValidation(w, []string{err.Error()})
		return 0, false
	}
	return id, true
}

// respondRepoError maps catalog errors; anything else goes to the terminal handler.
func (s *Server) respondRepoError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrInvalidProduct) {
		fail(w, err)
		return
	}
	s.internalError(w, r, err, nil)
}

// ProductListHandler handles GET /products. Optional filters: ?titulo= (substring,
// case-insensitive) and ?estado= (exact status).
func (s *Server) ProductListHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		list []models.Product
		err  error
	)
	switch {
	case q.Get("titulo") != "":
		list, err = s.repo.FindByTitle(ctx, q.Get("titulo"))
	case q.Get("estado") != "":
		if !models.IsValidStatus(q.Get("estado")) {
			writeValidation(w, []string{"estado must be one of: activo, inactivo, mantenimiento"})
			return
		}
		list, err = s.repo.FindByStatus(ctx, q.Get("estado"))
	default:
		list, err = s.repo.List(ctx)
	}
	if err != nil {
		s.respondRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ProductGetHandler handles GET /products/{id}
func (s *Server) ProductGetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.respondRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProductCreateHandler handles POST /products
func (s *Server) ProductCreateHandler(w http.ResponseWriter, r *http.Request) {
	data, ok := productPayload(w, r)
	if !ok {
		return
	}
	draft, res := validation.ValidateCreate(data)
	if !res.Valid {
		writeValidation(w, res.Errors)
		return
	}
	p, err := s.repo.Create(r.Context(), draft)
	if err != nil {
		s.respondRepoError(w, r, err)
		return
	}
	s.productCreated(r.Context(), p)
	writeJSON(w, http.StatusCreated, p)
}

// ProductUpdateHandler handles PUT and PATCH /products/{id}. Both merge the
// supplied fields into the stored product.
func (s *Server) ProductUpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if !s.checkOwnership(w, r, id) {
		return
	}
	data, ok := productPayload(w, r)
	if !ok {
		return
	}
	patch, res := validation.ValidateUpdate(data)
	if !res.Valid {
		writeValidation(w, res.Errors)
		return
	}
	p, err := s.repo.Update(r.Context(), id, patch)
	if err != nil {
		s.respondRepoError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProductDeleteHandler handles DELETE /products/{id}
func (s *Server) ProductDeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if !s.checkOwnership(w, r, id) {
		return
	}
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.respondRepoError(w, r, err)
		return
	}
	s.refreshProductGauge(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"message": "Product deleted", "id": id})
}

// checkOwnership runs the ownership gate for a mutation on id and records
// admin overrides.
func (s *Server) checkOwnership(w http.ResponseWriter, r *http.Request, id int) bool {
	own, err := policy.CheckOwnership(principalFromCtx(r.Context()), strconv.Itoa(id))
	if err != nil {
		fail(w, err)
		return false
	}
	if own.Bypassed {
		fields := requestFields(r)
		fields["resourceId"] = own.ResourceID
		fields["userId"] = principalFromCtx(r.Context()).ID
		s.logger.LogEvent(models.EventAdminAction, models.SeverityLow, fields)
	}
	return true
}
