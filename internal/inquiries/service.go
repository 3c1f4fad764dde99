package inquiries

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/heizoel/internal/events"
	"github.com/MarcoPoloResearchLab/heizoel/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew         = "inquiries.service.new"
	opSubmitContact      = "inquiries.submit_contact"
	opSubmitOrder        = "inquiries.submit_order"
	opGetContact         = "inquiries.get_contact"
	opGetOrder           = "inquiries.get_order"
	opListContacts       = "inquiries.list_contacts"
	opListOrders         = "inquiries.list_orders"
	opUpdateOrderStatus  = "inquiries.update_order_status"
	opDeleteContact      = "inquiries.delete_contact"
	opDeleteOrder        = "inquiries.delete_order"
	opAddContactNote     = "inquiries.add_contact_note"
	opListContactNotes   = "inquiries.list_contact_notes"
	opAddOrderNote       = "inquiries.add_order_note"
	opListOrderNotes     = "inquiries.list_order_notes"
	opCounts             = "inquiries.counts"
	recentContactsWindow = 7 * 24 * time.Hour
)

var noOpLogger = zap.NewNop()

// ServiceConfig wires the inquiry service dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// Service stores form submissions and serves the admin views over them.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// SubmitContact validates and stores a contact request, then announces the insert.
func (s *Service) SubmitContact(ctx context.Context, submission ContactSubmission) (ContactRequest, error) {
	submission.Normalize()
	if err := submission.Validate(); err != nil {
		return ContactRequest{}, newServiceError(opSubmitContact, "validation_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmitContact, "id_generation_failed", err)
		return ContactRequest{}, newServiceError(opSubmitContact, "id_generation_failed", err)
	}
	record := ContactRequest{
		ID:         id,
		Salutation: submission.Salutation,
		Company:    submission.Company,
		FirstName:  submission.FirstName,
		LastName:   submission.LastName,
		Email:      submission.Email,
		Phone:      submission.Phone,
		Message:    submission.Message,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opSubmitContact, "insert_failed", err, zap.String("contact_request_id", id))
		return ContactRequest{}, newServiceError(opSubmitContact, "insert_failed", err)
	}

	s.publish(events.TopicContactRequests, events.ActionInsert, record.ID)
	return record, nil
}

// SubmitOrder validates and stores an order with status pending, then announces the insert.
func (s *Service) SubmitOrder(ctx context.Context, submission OrderSubmission) (Order, error) {
	submission.Normalize()
	if err := submission.Validate(); err != nil {
		return Order{}, newServiceError(opSubmitOrder, "validation_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmitOrder, "id_generation_failed", err)
		return Order{}, newServiceError(opSubmitOrder, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	record := Order{
		ID:             id,
		Salutation:     submission.Salutation,
		Company:        submission.Company,
		FirstName:      submission.FirstName,
		LastName:       submission.LastName,
		Email:          submission.Email,
		Phone:          submission.Phone,
		Street:         submission.Street,
		PostalCode:     submission.PostalCode,
		City:           submission.City,
		Product:        submission.Product,
		Quantity:       submission.Quantity,
		DeliveryPoints: submission.DeliveryPoints,
		DeliveryTime:   submission.DeliveryTime,
		Message:        submission.Message,
		Status:         OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opSubmitOrder, "insert_failed", err, zap.String("order_id", id))
		return Order{}, newServiceError(opSubmitOrder, "insert_failed", err)
	}

	s.publish(events.TopicOrders, events.ActionInsert, record.ID)
	return record, nil
}

// GetContactRequest loads one contact request.
func (s *Service) GetContactRequest(ctx context.Context, id string) (ContactRequest, error) {
	var record ContactRequest
	if err := s.take(ctx, opGetContact, &record, strings.TrimSpace(id)); err != nil {
		return ContactRequest{}, err
	}
	return record, nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	var record Order
	if err := s.take(ctx, opGetOrder, &record, strings.TrimSpace(id)); err != nil {
		return Order{}, err
	}
	return record, nil
}

// ListContactRequests returns every contact request newest first, narrowed in memory by filter.
func (s *Service) ListContactRequests(ctx context.Context, filter ContactFilter) ([]ContactRequest, error) {
	var records []ContactRequest
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&records).Error; err != nil {
		s.logError(opListContacts, "query_failed", err)
		return nil, newServiceError(opListContacts, "query_failed", err)
	}
	matched := make([]ContactRequest, 0, len(records))
	for _, record := range records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// ListOrders returns every order newest first, narrowed in memory by filter.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	var records []Order
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&records).Error; err != nil {
		s.logError(opListOrders, "query_failed", err)
		return nil, newServiceError(opListOrders, "query_failed", err)
	}
	matched := make([]Order, 0, len(records))
	for _, record := range records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// UpdateOrderStatus sets any known status regardless of the current one. Last write wins.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, rawStatus string) (Order, error) {
	status, err := ParseOrderStatus(rawStatus)
	if err != nil {
		return Order{}, newServiceError(opUpdateOrderStatus, "invalid_status", err)
	}

	var record Order
	if err := s.take(ctx, opUpdateOrderStatus, &record, strings.TrimSpace(id)); err != nil {
		return Order{}, err
	}
	record.Status = status
	record.UpdatedAt = s.clock().UTC()
	result := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{"status": record.Status, "updated_at": record.UpdatedAt})
	if result.Error != nil {
		s.logError(opUpdateOrderStatus, "update_failed", result.Error, zap.String("order_id", record.ID))
		return Order{}, newServiceError(opUpdateOrderStatus, "update_failed", result.Error)
	}

	s.publish(events.TopicOrders, events.ActionUpdate, record.ID)
	return record, nil
}

// DeleteContactRequest removes a contact request together with its notes.
func (s *Service) DeleteContactRequest(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contact_request_id = ?", id).Delete(&ContactRequestNote{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&ContactRequest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return newServiceError(opDeleteContact, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opDeleteContact, "delete_failed", err, zap.String("contact_request_id", id))
		return newServiceError(opDeleteContact, "delete_failed", err)
	}
	s.publish(events.TopicContactRequests, events.ActionDelete, id)
	return nil
}

// DeleteOrder removes an order together with its notes.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&OrderNote{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&Order{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return newServiceError(opDeleteOrder, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opDeleteOrder, "delete_failed", err, zap.String("order_id", id))
		return newServiceError(opDeleteOrder, "delete_failed", err)
	}
	s.publish(events.TopicOrders, events.ActionDelete, id)
	return nil
}

// AddContactNote appends a note to an existing contact request.
func (s *Service) AddContactNote(ctx context.Context, contactRequestID, text string) (ContactRequestNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ContactRequestNote{}, newServiceError(opAddContactNote, "empty_note", ErrEmptyNote)
	}
	var parent ContactRequest
	if err := s.take(ctx, opAddContactNote, &parent, strings.TrimSpace(contactRequestID)); err != nil {
		return ContactRequestNote{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddContactNote, "id_generation_failed", err)
		return ContactRequestNote{}, newServiceError(opAddContactNote, "id_generation_failed", err)
	}
	note := ContactRequestNote{
		ID:               id,
		ContactRequestID: parent.ID,
		NoteText:         text,
		CreatedAt:        s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opAddContactNote, "insert_failed", err, zap.String("contact_request_id", parent.ID))
		return ContactRequestNote{}, newServiceError(opAddContactNote, "insert_failed", err)
	}
	s.publish(events.TopicContactRequestNotes, events.ActionInsert, note.ID)
	return note, nil
}

// ListContactNotes returns the notes of a contact request, oldest first.
func (s *Service) ListContactNotes(ctx context.Context, contactRequestID string) ([]ContactRequestNote, error) {
	var parent ContactRequest
	if err := s.take(ctx, opListContactNotes, &parent, strings.TrimSpace(contactRequestID)); err != nil {
		return nil, err
	}
	var notes []ContactRequestNote
	if err := s.db.WithContext(ctx).
		Where("contact_request_id = ?", parent.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&notes).Error; err != nil {
		s.logError(opListContactNotes, "query_failed", err, zap.String("contact_request_id", parent.ID))
		return nil, newServiceError(opListContactNotes, "query_failed", err)
	}
	return notes, nil
}

// AddOrderNote appends a note to an existing order.
func (s *Service) AddOrderNote(ctx context.Context, orderID, text string) (OrderNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return OrderNote{}, newServiceError(opAddOrderNote, "empty_note", ErrEmptyNote)
	}
	var parent Order
	if err := s.take(ctx, opAddOrderNote, &parent, strings.TrimSpace(orderID)); err != nil {
		return OrderNote{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddOrderNote, "id_generation_failed", err)
		return OrderNote{}, newServiceError(opAddOrderNote, "id_generation_failed", err)
	}
	note := OrderNote{
		ID:        id,
		OrderID:   parent.ID,
		NoteText:  text,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opAddOrderNote, "insert_failed", err, zap.String("order_id", parent.ID))
		return OrderNote{}, newServiceError(opAddOrderNote, "insert_failed", err)
	}
	s.publish(events.TopicOrderNotes, events.ActionInsert, note.ID)
	return note, nil
}

// ListOrderNotes returns the notes of an order, oldest first.
func (s *Service) ListOrderNotes(ctx context.Context, orderID string) ([]OrderNote, error) {
	var parent Order
	if err := s.take(ctx, opListOrderNotes, &parent, strings.TrimSpace(orderID)); err != nil {
		return nil, err
	}
	var notes []OrderNote
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", parent.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&notes).Error; err != nil {
		s.logError(opListOrderNotes, "query_failed", err, zap.String("order_id", parent.ID))
		return nil, newServiceError(opListOrderNotes, "query_failed", err)
	}
	return notes, nil
}

// Counts aggregates the figures shown on the admin dashboard.
type Counts struct {
	ContactsTotal    int64                 `json:"contacts_total"`
	ContactsLastWeek int64                 `json:"contacts_last_week"`
	OrdersTotal      int64                 `json:"orders_total"`
	OrdersByStatus   map[OrderStatus]int64 `json:"orders_by_status"`
}

// Counts computes the dashboard aggregates.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	counts := Counts{OrdersByStatus: make(map[OrderStatus]int64, len(orderStatusLabels))}
	for _, status := range OrderStatuses() {
		counts.OrdersByStatus[status] = 0
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&ContactRequest{}).Count(&counts.ContactsTotal).Error; err != nil {
		s.logError(opCounts, "contacts_count_failed", err)
		return Counts{}, newServiceError(opCounts, "contacts_count_failed", err)
	}
	since := s.clock().UTC().Add(-recentContactsWindow)
	if err := db.Model(&ContactRequest{}).Where("created_at >= ?", since).Count(&counts.ContactsLastWeek).Error; err != nil {
		s.logError(opCounts, "recent_contacts_count_failed", err)
		return Counts{}, newServiceError(opCounts, "recent_contacts_count_failed", err)
	}

	var rows []struct {
		Status OrderStatus
		Total  int64
	}
	if err := db.Model(&Order{}).Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		s.logError(opCounts, "orders_count_failed", err)
		return Counts{}, newServiceError(opCounts, "orders_count_failed", err)
	}
	for _, row := range rows {
		counts.OrdersByStatus[row.Status] = row.Total
		counts.OrdersTotal += row.Total
	}
	return counts, nil
}

func (s *Service) take(ctx context.Context, operation string, dest any, id string) error {
	if id == "" {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(operation, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "query_failed", err, zap.String("id", id))
		return newServiceError(operation, "query_failed", err)
	}
	return nil
}

func (s *Service) publish(topic events.Topic, action events.Action, id string) {
	s.publisher.Publish(events.Change{
		Topic:     topic,
		Action:    action,
		RecordID:  id,
		Timestamp: s.clock().UTC(),
	})
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("inquiries service error", attrs...)
}
