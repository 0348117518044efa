package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/dto"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/service"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// syncTimeout bounds a sync triggered over HTTP; it outlives the request timeout.
const syncTimeout = 10 * time.Minute

// VendorsHandler exposes vendor CRUD, import and sync.
type VendorsHandler struct {
	vendors *service.VendorService
	imports *service.ImportService
	sync    *service.SyncService
}

// NewVendorsHandler constructs handler.
func NewVendorsHandler(vendors *service.VendorService, imports *service.ImportService, sync *service.SyncService) *VendorsHandler {
	return &VendorsHandler{vendors: vendors, imports: imports, sync: sync}
}

// List handles GET /api/vendors.
func (h *VendorsHandler) List(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := repository.VendorFilter{Search: c.Query("q"), GMVTier: c.Query("tier"), Limit: limit, Offset: offset}
	list, total, err := h.vendors.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.Vendor{}
	}
	return data(c, http.StatusOK, dto.PageResponse[domain.Vendor]{Items: list, Total: total, Limit: limit, Offset: offset})
}

// Get handles GET /api/vendors/:handle.
func (h *VendorsHandler) Get(c *fiber.Ctx) error {
	v, err := h.vendors.Get(c.UserContext(), c.Params("handle"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, v)
}

// Create handles POST /api/vendors.
func (h *VendorsHandler) Create(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.VendorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v, err := h.vendors.Create(c.UserContext(), principal, vendorInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, v)
}

// Update handles PATCH /api/vendors/:handle.
func (h *VendorsHandler) Update(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.VendorRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v, err := h.vendors.Update(c.UserContext(), principal, c.Params("handle"), vendorInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, v)
}

// Import handles POST /api/vendors/import with a multipart "file" (.csv or .xlsx).
func (h *VendorsHandler) Import(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" is required", nil)
	}
	format, err := service.FormatFromFilename(header.Filename)
	if err != nil {
		return err
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewValidationError("cannot read upload", map[string]any{"reason": err.Error()})
	}
	defer file.Close()

	result, err := h.imports.ImportVendors(c.UserContext(), principal, format, file)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, result)
}

// Sync handles POST /api/vendors/sync. A run already in progress yields 409.
func (h *VendorsHandler) Sync(c *fiber.Ctx) error {
	result, err := runSync(c.UserContext(), h.sync)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, result)
}

// LastSync handles GET /api/vendors/sync/last.
func (h *VendorsHandler) LastSync(c *fiber.Ctx) error {
	return data(c, http.StatusOK, h.sync.Last())
}

func runSync(parent context.Context, sync *service.SyncService) (*service.SyncResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), syncTimeout)
	defer cancel()
	return sync.Run(ctx)
}

func vendorInput(req dto.VendorRequest) service.VendorInput {
	return service.VendorInput{
		Handle:        req.Handle,
		Name:          req.Name,
		ContactName:   req.ContactName,
		Email:         req.Email,
		Phone:         req.Phone,
		City:          req.City,
		Country:       req.Country,
		Segment:       req.Segment,
		TotalOrders:   req.TotalOrders,
		GMV:           req.GMV,
		Rating:        req.Rating,
		International: req.IsInternational,
	}
}

// WebhooksHandler receives n8n callbacks.
type WebhooksHandler struct {
	sync *service.SyncService
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(sync *service.SyncService) *WebhooksHandler {
	return &WebhooksHandler{sync: sync}
}

type pushedVendorsRequest struct {
	Vendors []n8n.VendorRecord `json:"vendors"`
}

// Vendors handles POST /api/webhooks/n8n/vendors.
func (h *WebhooksHandler) Vendors(c *fiber.Ctx) error {
	var req pushedVendorsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.sync.ApplyPushed(c.UserContext(), req.Vendors)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, result)
}

// Sync handles POST /api/webhooks/n8n/sync.
func (h *WebhooksHandler) Sync(c *fiber.Ctx) error {
	result, err := runSync(c.UserContext(), h.sync)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, result)
}
