// Package shipping decides when an order ships, builds the shipment request
// for the aggregator and records the resulting waybill on the order.
package shipping

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-payments/internal/apperr"
	"github.com/joao-fontenele/storefront-payments/internal/biteship"
	"github.com/joao-fontenele/storefront-payments/internal/config"
	"github.com/joao-fontenele/storefront-payments/internal/domain"
	"github.com/joao-fontenele/storefront-payments/internal/telemetry"
)

var tracer = otel.Tracer("shipping")

const (
	// minWaybillLength guards against partial or placeholder resi values.
	minWaybillLength = 6

	DefaultClaimLease = 2 * time.Minute
)

type ShipmentCreator interface {
	CreateOrder(ctx context.Context, req biteship.OrderRequest) (*biteship.OrderResult, error)
}

type ShipmentStore interface {
	ClaimShipment(ctx context.Context, orderID string, lease time.Duration) (bool, error)
	ReleaseShipment(ctx context.Context, orderID string) error
	RecordShipment(ctx context.Context, orderID, waybill string, meta *domain.ShipmentMeta) error
}

type DimensionsLookup interface {
	Dimensions(ctx context.Context, productIDs []string) (map[string]domain.ProductDimensions, error)
}

type Orchestrator struct {
	creator    ShipmentCreator
	store      ShipmentStore
	catalog    DimensionsLookup
	warehouse  config.Warehouse
	parcel     config.Parcel
	claimLease time.Duration
	shipments  metric.Int64Counter
	logger     *slog.Logger
}

// NewOrchestrator wires the orchestrator. catalog may be nil, in which case
// only item-level dimensions and defaults are used.
func NewOrchestrator(creator ShipmentCreator, store ShipmentStore, catalog DimensionsLookup, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		creator:    creator,
		store:      store,
		catalog:    catalog,
		warehouse:  cfg.Warehouse,
		parcel:     cfg.Parcel,
		claimLease: DefaultClaimLease,
		shipments:  telemetry.NewCounter("shipping", "shipping.shipments", "Shipment creation attempts by result"),
		logger:     logger,
	}
}

// ShouldShip reports whether a shipment must be created for the order. The
// reason explains a negative answer.
func ShouldShip(sub *domain.CheckoutSubmission, order *domain.Order) (bool, string) {
	if sub.ShippingAddress.IsZero() {
		return false, "submission has no shipping address"
	}

	if order.ShippingAddress.Biteship != nil {
		return false, "aggregator shipment already created"
	}

	resi := strings.TrimSpace(order.Resi())
	if resi == "" || resi == domain.ShippingResiPending || len(resi) < minWaybillLength {
		return true, ""
	}

	return false, "order already has a waybill"
}

// Ship creates the shipment for a paid order when it is due. A nil result
// with a nil error means the shipment was skipped; the reason is logged.
// Aggregator rejections come back as a result with Success false.
func (o *Orchestrator) Ship(ctx context.Context, sub *domain.CheckoutSubmission, order *domain.Order) (*domain.ShipmentResult, error) {
	ctx, span := tracer.Start(ctx, "shipping.ship",
		trace.WithAttributes(attribute.String("order.id", order.ID)),
	)
	defer span.End()

	if ok, reason := ShouldShip(sub, order); !ok {
		o.skip(ctx, order.ID, reason)
		return nil, nil
	}

	courier, ok := ResolveCourier(sub.ShippingMethod)
	if !ok {
		o.skip(ctx, order.ID, "shipping method does not support automatic shipment", "shipping_method", sub.ShippingMethod)
		return nil, nil
	}

	addr := sub.ShippingAddress
	if strings.TrimSpace(addr.Street) == "" || strings.TrimSpace(addr.PostalCode) == "" {
		o.skip(ctx, order.ID, "destination address or postal code missing")
		return nil, nil
	}

	claimed, err := o.store.ClaimShipment(ctx, order.ID, o.claimLease)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.KindPersistence, "claim shipment", err)
	}
	if !claimed {
		o.skip(ctx, order.ID, "shipment already created or in progress")
		return nil, nil
	}

	parcel := BuildParcel(sub.Items, o.dimensions(ctx, sub.Items), o.parcel)
	req := o.deliveryRequest(sub, order, courier, parcel)

	result, err := o.CreateShipment(ctx, req)
	if err != nil || !result.Success {
		if releaseErr := o.store.ReleaseShipment(ctx, order.ID); releaseErr != nil {
			o.logger.ErrorContext(ctx, "failed to release shipment claim", "error", releaseErr, "order_id", order.ID)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetStatus(codes.Error, result.Message)
		o.logger.WarnContext(ctx, "shipment creation rejected", "order_id", order.ID, "message", result.Message)
		return result, nil
	}

	if err := o.store.RecordShipment(ctx, order.ID, result.Waybill, result.Meta()); err != nil {
		// The claim is kept so the lease blocks a second shipment for the same order.
		o.logger.ErrorContext(ctx, "shipment created but not recorded",
			"error", err, "order_id", order.ID, "waybill", result.Waybill, "biteship_order_id", result.OrderID)
		span.RecordError(err)
		return result, apperr.Wrap(apperr.KindPersistence, "record shipment", err)
	}

	o.logger.InfoContext(ctx, "shipment created",
		"order_id", order.ID, "waybill", result.Waybill, "courier", result.CourierCode, "service", result.CourierService)
	return result, nil
}

// CreateShipment sends req to the aggregator and converts the answer.
// Transport failures are returned as external service errors.
func (o *Orchestrator) CreateShipment(ctx context.Context, req biteship.OrderRequest) (*domain.ShipmentResult, error) {
	res, err := o.creator.CreateOrder(ctx, req)
	if err != nil {
		o.shipments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return nil, apperr.Wrap(apperr.KindExternalService, "create shipment", err)
	}

	if !res.OK() {
		o.shipments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "rejected")))
		return &domain.ShipmentResult{
			Success: false,
			Message: res.Message(),
			Raw:     res.Body,
		}, nil
	}

	o.shipments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "created")))
	return &domain.ShipmentResult{
		Success:        true,
		Waybill:        res.Response.Waybill(),
		CourierCode:    res.Response.CourierCode(),
		CourierService: res.Response.CourierService(),
		TrackingURL:    res.Response.TrackingURL(),
		OrderID:        res.Response.OrderID(),
		Raw:            res.Body,
	}, nil
}

// BuildParcelFor computes the parcel for items, consulting the catalog.
func (o *Orchestrator) BuildParcelFor(ctx context.Context, items []domain.SubmissionItem) Parcel {
	return BuildParcel(items, o.dimensions(ctx, items), o.parcel)
}

func (o *Orchestrator) Warehouse() config.Warehouse {
	return o.warehouse
}

func (o *Orchestrator) dimensions(ctx context.Context, items []domain.SubmissionItem) map[string]domain.ProductDimensions {
	if o.catalog == nil {
		return nil
	}
	dims, err := o.catalog.Dimensions(ctx, ProductIDs(items))
	if err != nil {
		o.logger.WarnContext(ctx, "failed to load product dimensions, using defaults", "error", err)
		return nil
	}
	return dims
}

func (o *Orchestrator) deliveryRequest(sub *domain.CheckoutSubmission, order *domain.Order, courier Courier, parcel Parcel) biteship.OrderRequest {
	addr := sub.ShippingAddress
	wh := o.warehouse

	req := baseRequest(courier, parcel, sub.Total)
	req.ShipperContactName = wh.Name
	req.ShipperContactPhone = NormalizePhone(wh.Phone)
	req.ShipperContactEmail = wh.Email
	req.ShipperOrganization = wh.Organization
	req.OriginContactName = wh.Name
	req.OriginContactPhone = NormalizePhone(wh.Phone)
	req.OriginAddress = wh.Address
	req.OriginNote = wh.Note
	req.OriginPostalCode = wh.PostalCode
	req.DestinationContactName = addr.Name
	req.DestinationContactPhone = NormalizePhone(addr.Phone)
	req.DestinationContactEmail = addr.Email
	req.DestinationAddress = FullAddress(addr)
	req.DestinationArea = Area(addr)
	req.DestinationPostalCode = strings.TrimSpace(addr.PostalCode)
	req.DestinationNote = addr.Note
	req.OrderNote = order.OrderNumber
	req.ReferenceID = order.ID

	return req
}

// baseRequest fills the courier, parcel and the fixed delivery options: no
// insurance, no cash on delivery, pickup at origin, immediate prepaid delivery.
func baseRequest(courier Courier, parcel Parcel, value int64) biteship.OrderRequest {
	return biteship.OrderRequest{
		OriginCollectionMethod:    "pickup",
		DestinationCashOnDelivery: 0,
		CourierCompany:            courier.Company,
		CourierType:               courier.Type,
		CourierInsurance:          0,
		DeliveryType:              "now",
		PaymentType:               "prepaid",
		Value:                     value,
		Weight:                    parcel.Weight,
		Length:                    parcel.Length,
		Width:                     parcel.Width,
		Height:                    parcel.Height,
		Items:                     parcel.Items,
	}
}

// ReturnRequest builds a shipment from the customer back to the warehouse.
// The courier is always J&T regardless of how the order was delivered.
func (o *Orchestrator) ReturnRequest(order *domain.Order, parcel Parcel, reference string) biteship.OrderRequest {
	addr := order.ShippingAddress
	wh := o.warehouse

	req := baseRequest(CourierJNT, parcel, order.TotalAmount)
	req.ShipperContactName = addr.Name
	req.ShipperContactPhone = NormalizePhone(addr.Phone)
	req.ShipperContactEmail = addr.Email
	req.OriginContactName = addr.Name
	req.OriginContactPhone = NormalizePhone(addr.Phone)
	req.OriginAddress = FullAddress(&addr)
	req.OriginNote = addr.Note
	req.OriginPostalCode = strings.TrimSpace(addr.PostalCode)
	req.DestinationContactName = wh.Name
	req.DestinationContactPhone = NormalizePhone(wh.Phone)
	req.DestinationContactEmail = wh.Email
	req.DestinationAddress = wh.Address
	req.DestinationPostalCode = wh.PostalCode
	req.DestinationNote = wh.Note
	req.OrderNote = "Retur " + order.OrderNumber
	req.ReferenceID = reference

	return req
}

func (o *Orchestrator) skip(ctx context.Context, orderID, reason string, attrs ...any) {
	o.shipments.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "skipped")))
	o.logger.InfoContext(ctx, "shipment skipped", append([]any{"order_id", orderID, "reason", reason}, attrs...)...)
}

// FullAddress joins the street with the district, city and province.
func FullAddress(addr *domain.ShippingAddress) string {
	return joinNonEmpty(addr.Street, addr.District, addr.City, addr.Province)
}

func Area(addr *domain.ShippingAddress) string {
	return joinNonEmpty(addr.District, addr.City, addr.Province)
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
