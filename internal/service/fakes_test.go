package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"procurement/internal/domain"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// store is the shared in-memory database behind the fake repositories.
type store struct {
	demandForms map[uuid.UUID]model.DemandForm
	requests    map[uuid.UUID]model.Request
	tenders     map[uuid.UUID]model.Tender
	orders      map[uuid.UUID]model.Order
	users       map[uuid.UUID]model.User
	refresh     map[string]model.RefreshToken
	audits      []model.AuditLog

	// failAudit makes Log fail for entries with this action.
	failAudit string
}

func newStore() *store {
	return &store{
		demandForms: map[uuid.UUID]model.DemandForm{},
		requests:    map[uuid.UUID]model.Request{},
		tenders:     map[uuid.UUID]model.Tender{},
		orders:      map[uuid.UUID]model.Order{},
		users:       map[uuid.UUID]model.User{},
		refresh:     map[string]model.RefreshToken{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *store) snapshot() store {
	return store{
		demandForms: copyMap(st.demandForms),
		requests:    copyMap(st.requests),
		tenders:     copyMap(st.tenders),
		orders:      copyMap(st.orders),
		users:       copyMap(st.users),
		refresh:     copyMap(st.refresh),
		audits:      append([]model.AuditLog(nil), st.audits...),
		failAudit:   st.failAudit,
	}
}

func (st *store) auditActions() []string {
	out := make([]string, 0, len(st.audits))
	for _, a := range st.audits {
		out = append(out, a.Action)
	}
	return out
}

// fakeTx restores the store when fn fails, nested calls behaving like savepoints.
type fakeTx struct{ st *store }

func (f fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	snap := f.st.snapshot()
	if err := fn(ctx); err != nil {
		*f.st = snap
		return err
	}
	return nil
}

type beforeSaver interface {
	BeforeSave(*gorm.DB) error
}

// --- requisitions ---

type fakeRequisitionRepo struct{ st *store }

func (r fakeRequisitionRepo) get(kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, bool) {
	switch kind {
	case workflow.KindDemandForm:
		v, ok := r.st.demandForms[id]
		if !ok {
			return nil, false
		}
		v.Items = append([]model.LineItem(nil), v.Items...)
		return &v, true
	case workflow.KindRequest:
		v, ok := r.st.requests[id]
		if !ok {
			return nil, false
		}
		v.Items = append([]model.LineItem(nil), v.Items...)
		return &v, true
	}
	return nil, false
}

func (r fakeRequisitionRepo) put(rec model.RequisitionRecord) {
	switch v := rec.(type) {
	case *model.DemandForm:
		r.st.demandForms[v.ID] = *v
	case *model.Request:
		r.st.requests[v.ID] = *v
	}
}

func (r fakeRequisitionRepo) all(kind workflow.Kind) []model.RequisitionRecord {
	var out []model.RequisitionRecord
	if kind == workflow.KindDemandForm {
		for id := range r.st.demandForms {
			rec, _ := r.get(kind, id)
			out = append(out, rec)
		}
	} else {
		for id := range r.st.requests {
			rec, _ := r.get(kind, id)
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number() < out[j].Number() })
	return out
}

func (r fakeRequisitionRepo) Create(ctx context.Context, rec model.RequisitionRecord) error {
	if err := rec.(beforeSaver).BeforeSave(nil); err != nil {
		return err
	}
	for _, other := range r.all(rec.Kind()) {
		if other.Number() == rec.Number() {
			return fmt.Errorf("%w: number %s", domain.ErrConflict, rec.Number())
		}
	}
	switch v := rec.(type) {
	case *model.DemandForm:
		v.ID = uuid.New()
	case *model.Request:
		v.ID = uuid.New()
	}
	rec.Base().CreatedAt = time.Now()
	r.put(rec)
	return nil
}

func (r fakeRequisitionRepo) Find(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	rec, ok := r.get(kind, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	return rec, nil
}

func (r fakeRequisitionRepo) FindForUpdate(ctx context.Context, kind workflow.Kind, id uuid.UUID) (model.RequisitionRecord, error) {
	return r.Find(ctx, kind, id)
}

func (r fakeRequisitionRepo) SaveDraft(ctx context.Context, rec model.RequisitionRecord) error {
	if err := rec.(beforeSaver).BeforeSave(nil); err != nil {
		return err
	}
	r.put(rec)
	return nil
}

func (r fakeRequisitionRepo) Delete(ctx context.Context, kind workflow.Kind, id uuid.UUID) error {
	if _, ok := r.get(kind, id); !ok {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	delete(r.st.demandForms, id)
	delete(r.st.requests, id)
	return nil
}

func matchesQueue(base *model.Requisition, queues []workflow.Queue) bool {
	for _, q := range queues {
		if base.RequestStage != q.Stage {
			continue
		}
		if q.ProcurementApproved == nil || *q.ProcurementApproved == base.ProcurementIsApproved {
			return true
		}
	}
	return false
}

func (r fakeRequisitionRepo) List(ctx context.Context, kind workflow.Kind, f repository.RequisitionFilter) ([]model.RequisitionRecord, int64, error) {
	out := []model.RequisitionRecord{}
	for _, rec := range r.all(kind) {
		base := rec.Base()
		if f.Stage != "" && base.RequestStage != f.Stage {
			continue
		}
		if f.Department != "" && base.Department != f.Department {
			continue
		}
		if f.RequirementType != "" && string(base.RequirementType) != f.RequirementType {
			continue
		}
		if f.CreatedBy != nil && base.CreatedBy != *f.CreatedBy {
			continue
		}
		if len(f.Queues) > 0 && !matchesQueue(base, f.Queues) {
			continue
		}
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

func (r fakeRequisitionRepo) ApplyTransition(ctx context.Context, kind workflow.Kind, id uuid.UUID, procurementApproved bool, change workflow.Change, extras model.StageExtras) error {
	rec, ok := r.get(kind, id)
	if !ok {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
	}
	base := rec.Base()
	if base.RequestStage != change.From || base.ProcurementIsApproved != procurementApproved {
		return fmt.Errorf("%w: %s %s moved", domain.ErrInvalidStage, kind, id)
	}
	base.Apply(change)
	extras.ApplyTo(rec)
	r.put(rec)
	return nil
}

func (r fakeRequisitionRepo) NextNumber(ctx context.Context, kind workflow.Kind, day time.Time) (string, error) {
	prefix := model.NumberPrefix(kind, day)
	n := 0
	for _, rec := range r.all(kind) {
		if strings.HasPrefix(rec.Number(), prefix) {
			n++
		}
	}
	return fmt.Sprintf("%s%05d", prefix, n+1), nil
}

// --- tenders ---

type fakeTenderRepo struct{ st *store }

func (r fakeTenderRepo) Create(ctx context.Context, t *model.Tender) error {
	if err := t.BeforeSave(nil); err != nil {
		return err
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	r.st.tenders[t.ID] = *t
	return nil
}

func (r fakeTenderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Tender, error) {
	t, ok := r.st.tenders[id]
	if !ok {
		return nil, fmt.Errorf("%w: tender %s", domain.ErrNotFound, id)
	}
	return &t, nil
}

func (r fakeTenderRepo) FindActiveBySource(ctx context.Context, kind workflow.Kind, sourceID uuid.UUID) (*model.Tender, error) {
	for _, t := range r.st.tenders {
		k, id := t.Source()
		if k == kind && id == sourceID && t.Status == model.TenderActive {
			found := t
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: no active tender", domain.ErrNotFound)
}

func (r fakeTenderRepo) LockSource(ctx context.Context, sourceID uuid.UUID) error { return nil }

func (r fakeTenderRepo) List(ctx context.Context, f repository.TenderFilter) ([]model.Tender, int64, error) {
	out := []model.Tender{}
	for _, t := range r.st.tenders {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (r fakeTenderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TenderStatus) error {
	t, ok := r.st.tenders[id]
	if !ok {
		return fmt.Errorf("%w: tender %s", domain.ErrNotFound, id)
	}
	if t.Status != from {
		return fmt.Errorf("%w: tender %s is not %s", domain.ErrInvalidStage, id, from)
	}
	t.Status = to
	r.st.tenders[id] = t
	return nil
}

func (r fakeTenderRepo) CloseExpired(ctx context.Context, now time.Time) ([]model.Tender, error) {
	var closed []model.Tender
	for id, t := range r.st.tenders {
		if t.Status == model.TenderActive && t.ClosingDate.Before(now) {
			t.Status = model.TenderClosed
			r.st.tenders[id] = t
			closed = append(closed, t)
		}
	}
	return closed, nil
}

func (r fakeTenderRepo) NextReferenceNo(ctx context.Context, day time.Time) (string, error) {
	return fmt.Sprintf("%s%05d", model.TenderNumberPrefix(day), len(r.st.tenders)+1), nil
}

// --- orders ---

type fakeOrderRepo struct{ st *store }

func (r fakeOrderRepo) Create(ctx context.Context, o *model.Order) error {
	for _, other := range r.st.orders {
		if other.UserID == o.UserID && other.TenderID == o.TenderID {
			return fmt.Errorf("%w: duplicate order", domain.ErrConflict)
		}
	}
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	r.st.orders[o.ID] = *o
	return nil
}

func (r fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	return &o, nil
}

func (r fakeOrderRepo) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.FindByID(ctx, id)
}

func (r fakeOrderRepo) FindByUserAndTender(ctx context.Context, userID, tenderID uuid.UUID) (*model.Order, error) {
	for _, o := range r.st.orders {
		if o.UserID == userID && o.TenderID == tenderID {
			found := o
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: order", domain.ErrNotFound)
}

func (r fakeOrderRepo) List(ctx context.Context, f repository.OrderFilter) ([]model.Order, int64, error) {
	out := []model.Order{}
	for _, o := range r.st.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.TenderID != nil && o.TenderID != *f.TenderID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

func (r fakeOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	o, ok := r.st.orders[id]
	if !ok || o.Status != from {
		return fmt.Errorf("%w: order %s moved", domain.ErrInvalidStage, id)
	}
	o.Status = to
	r.st.orders[id] = o
	return nil
}

func (r fakeOrderRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	o, ok := r.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	o.PaymentStatus = status
	r.st.orders[id] = o
	return nil
}

func (r fakeOrderRepo) SummaryByTender(ctx context.Context, tenderID *uuid.UUID) ([]model.TenderOrderSummary, error) {
	byTender := map[uuid.UUID]*model.TenderOrderSummary{}
	for _, o := range r.st.orders {
		if tenderID != nil && o.TenderID != *tenderID {
			continue
		}
		sum, ok := byTender[o.TenderID]
		if !ok {
			t := r.st.tenders[o.TenderID]
			sum = &model.TenderOrderSummary{TenderID: t.ID, ReferenceNo: t.ReferenceNo, Title: t.Title, TenderStatus: t.Status, LowestAmount: o.Amount}
			byTender[o.TenderID] = sum
		}
		sum.TotalOrders++
		sum.TotalAmount = sum.TotalAmount.Add(o.Amount)
		sum.LowestAmount = decimal.Min(sum.LowestAmount, o.Amount)
		if o.Status == model.OrderDelivered {
			sum.DeliveredCount++
		}
	}
	out := make([]model.TenderOrderSummary, 0, len(byTender))
	for _, s := range byTender {
		out = append(out, *s)
	}
	return out, nil
}

// --- users ---

type fakeUserRepo struct{ st *store }

func (r fakeUserRepo) Create(ctx context.Context, u *model.User) error {
	for _, other := range r.st.users {
		if other.Email == u.Email {
			return fmt.Errorf("%w: email", domain.ErrConflict)
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	r.st.users[u.ID] = *u
	return nil
}

func (r fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return &u, nil
}

func (r fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.st.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, email)
}

func (r fakeUserRepo) List(ctx context.Context, f repository.UserFilter) ([]model.User, int64, error) {
	out := []model.User{}
	for _, u := range r.st.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (r fakeUserRepo) Update(ctx context.Context, u *model.User) error {
	r.st.users[u.ID] = *u
	return nil
}

func (r fakeUserRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	u, ok := r.st.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	u.IsActive = active
	r.st.users[id] = u
	return nil
}

func (r fakeUserRepo) CountByRole(ctx context.Context, role workflow.Role) (int64, error) {
	var n int64
	for _, u := range r.st.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (r fakeUserRepo) SaveRefreshToken(ctx context.Context, t *model.RefreshToken) error {
	r.st.refresh[t.Token] = *t
	return nil
}

func (r fakeUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	t, ok := r.st.refresh[token]
	if !ok {
		return nil, fmt.Errorf("%w: refresh token", domain.ErrNotFound)
	}
	return &t, nil
}

func (r fakeUserRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	delete(r.st.refresh, token)
	return nil
}

// --- audit & events ---

type fakeAuditRepo struct{ st *store }

func (r fakeAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	if r.st.failAudit != "" && entry.Action == r.st.failAudit {
		return errors.New("audit log unavailable")
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.st.audits = append(r.st.audits, *entry)
	return nil
}

func (r fakeAuditRepo) List(ctx context.Context, f repository.AuditFilter) ([]model.AuditLog, int64, error) {
	out := []model.AuditLog{}
	for i := len(r.st.audits) - 1; i >= 0; i-- {
		a := r.st.audits[i]
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if f.EntityID != "" && a.EntityID != f.EntityID {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

type recordedEvent struct {
	name string
	data interface{}
}

type fakePublisher struct{ events []recordedEvent }

func (p *fakePublisher) Publish(event string, data interface{}) {
	p.events = append(p.events, recordedEvent{name: event, data: data})
}

func (p *fakePublisher) names() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.name)
	}
	return out
}
