package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type stockRepo struct{ t *tx }

func (r stockRepo) LockStock(_ context.Context, productID string) (shop.ProductStock, error) {
	if err := r.t.faults.take("LockStock"); err != nil {
		return shop.ProductStock{}, err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok {
		return shop.ProductStock{}, shop.ErrProductNotFound
	}
	return ps, nil
}

func (r stockRepo) GetStock(_ context.Context, productID string) (shop.ProductStock, error) {
	if err := r.t.faults.take("GetStock"); err != nil {
		return shop.ProductStock{}, err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok {
		return shop.ProductStock{}, shop.ErrProductNotFound
	}
	return ps, nil
}

func (r stockRepo) Hold(_ context.Context, productID string, qty int) (bool, error) {
	if err := r.t.faults.take("Hold"); err != nil {
		return false, err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok || ps.Available < qty {
		return false, nil
	}
	ps.Available -= qty
	ps.Reserved += qty
	ps.UpdatedAt = r.t.now()
	r.t.st.stock[productID] = ps
	return true, nil
}

func (r stockRepo) ConsumeHeld(_ context.Context, productID string, qty int) error {
	if err := r.t.faults.take("ConsumeHeld"); err != nil {
		return err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok {
		return shop.ErrProductNotFound
	}
	if ps.Reserved < qty {
		return fmt.Errorf("reserved underflow for %s", productID)
	}
	ps.Reserved -= qty
	ps.UpdatedAt = r.t.now()
	r.t.st.stock[productID] = ps
	return nil
}

func (r stockRepo) ReturnHeld(_ context.Context, productID string, qty int) error {
	if err := r.t.faults.take("ReturnHeld"); err != nil {
		return err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok {
		return shop.ErrProductNotFound
	}
	if ps.Reserved < qty {
		return fmt.Errorf("reserved underflow for %s", productID)
	}
	ps.Reserved -= qty
	ps.Available += qty
	ps.UpdatedAt = r.t.now()
	r.t.st.stock[productID] = ps
	return nil
}

func (r stockRepo) Restock(_ context.Context, productID string, qty int) error {
	if err := r.t.faults.take("Restock"); err != nil {
		return err
	}
	ps, ok := r.t.st.stock[productID]
	if !ok {
		return shop.ErrProductNotFound
	}
	ps.Available += qty
	ps.UpdatedAt = r.t.now()
	r.t.st.stock[productID] = ps
	return nil
}

func (r stockRepo) UpsertStock(_ context.Context, productID string, available int) (shop.ProductStock, error) {
	ps := r.t.st.stock[productID]
	ps.ProductID = productID
	ps.Available = available
	ps.UpdatedAt = r.t.now()
	r.t.st.stock[productID] = ps
	return ps, nil
}

func (r stockRepo) InsertReservation(_ context.Context, res shop.Reservation) error {
	if err := r.t.faults.take("InsertReservation"); err != nil {
		return err
	}
	if _, dup := r.t.st.reservations[res.ID]; dup {
		return fmt.Errorf("duplicate reservation %s", res.ID)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.t.now()
	}
	r.t.st.reservations[res.ID] = res
	return nil
}

func (r stockRepo) LockReservation(_ context.Context, id string) (shop.Reservation, error) {
	if err := r.t.faults.take("LockReservation"); err != nil {
		return shop.Reservation{}, err
	}
	res, ok := r.t.st.reservations[id]
	if !ok {
		return shop.Reservation{}, shop.ErrReservationNotFound
	}
	return res, nil
}

func (r stockRepo) GetReservation(_ context.Context, id string) (shop.Reservation, error) {
	res, ok := r.t.st.reservations[id]
	if !ok {
		return shop.Reservation{}, shop.ErrReservationNotFound
	}
	return res, nil
}

func (r stockRepo) DeleteReservation(_ context.Context, id string) (bool, error) {
	if err := r.t.faults.take("DeleteReservation"); err != nil {
		return false, err
	}
	if _, ok := r.t.st.reservations[id]; !ok {
		return false, nil
	}
	delete(r.t.st.reservations, id)
	return true, nil
}

func (r stockRepo) ActiveByHolder(_ context.Context, holderID, productID string) ([]shop.Reservation, error) {
	var out []shop.Reservation
	for _, res := range r.t.st.reservations {
		if res.HolderID == holderID && res.ProductID == productID {
			out = append(out, res)
		}
	}
	sortReservations(out)
	return out, nil
}

func (r stockRepo) LockExpired(_ context.Context, now time.Time, limit int) ([]shop.Reservation, error) {
	var out []shop.Reservation
	for _, res := range r.t.st.reservations {
		if res.Expired(now) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortReservations(rs []shop.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

type cartRepo struct{ t *tx }

func (r cartRepo) LockCart(ctx context.Context, ownerID string) (shop.Cart, bool, error) {
	if err := r.t.faults.take("LockCart"); err != nil {
		return shop.Cart{}, false, err
	}
	row, ok := r.t.st.carts[ownerID]
	if !ok {
		return shop.Cart{OwnerID: ownerID}, false, nil
	}
	return shop.Cart{OwnerID: ownerID, Items: append([]shop.CartLine(nil), row.lines...), UpdatedAt: row.updatedAt}, true, nil
}

func (r cartRepo) GetCart(ctx context.Context, ownerID string) (shop.Cart, error) {
	c, _, err := r.LockCart(ctx, ownerID)
	return c, err
}

func (r cartRepo) AddQty(_ context.Context, ownerID, productID string, qty int) error {
	if err := r.t.faults.take("AddQty"); err != nil {
		return err
	}
	row := r.t.st.carts[ownerID]
	found := false
	for i := range row.lines {
		if row.lines[i].ProductID == productID {
			row.lines[i].Qty += qty
			found = true
			break
		}
	}
	if !found {
		row.lines = append(row.lines, shop.CartLine{ProductID: productID, Qty: qty})
	}
	row.updatedAt = r.t.now()
	r.t.st.carts[ownerID] = row
	return nil
}

func (r cartRepo) SetQty(_ context.Context, ownerID, productID string, qty int) error {
	row := r.t.st.carts[ownerID]
	found := false
	for i := range row.lines {
		if row.lines[i].ProductID == productID {
			row.lines[i].Qty = qty
			found = true
			break
		}
	}
	if !found {
		row.lines = append(row.lines, shop.CartLine{ProductID: productID, Qty: qty})
	}
	row.updatedAt = r.t.now()
	r.t.st.carts[ownerID] = row
	return nil
}

func (r cartRepo) DeleteLine(_ context.Context, ownerID, productID string) error {
	row, ok := r.t.st.carts[ownerID]
	if !ok {
		return nil
	}
	kept := row.lines[:0]
	for _, l := range row.lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	row.lines = kept
	row.updatedAt = r.t.now()
	r.t.st.carts[ownerID] = row
	return nil
}

func (r cartRepo) ClearLines(_ context.Context, ownerID string) error {
	if err := r.t.faults.take("ClearLines"); err != nil {
		return err
	}
	row, ok := r.t.st.carts[ownerID]
	if !ok {
		return nil
	}
	row.lines = nil
	row.updatedAt = r.t.now()
	r.t.st.carts[ownerID] = row
	return nil
}

func (r cartRepo) DeleteCart(_ context.Context, ownerID string) (bool, error) {
	if err := r.t.faults.take("DeleteCart"); err != nil {
		return false, err
	}
	if _, ok := r.t.st.carts[ownerID]; !ok {
		return false, nil
	}
	delete(r.t.st.carts, ownerID)
	return true, nil
}

type orderRepo struct{ t *tx }

func (r orderRepo) NextOrderSeq(context.Context) (int64, error) {
	r.t.st.orderSeq++
	return r.t.st.orderSeq, nil
}

func (r orderRepo) InsertOrder(_ context.Context, o shop.Order) error {
	if err := r.t.faults.take("InsertOrder"); err != nil {
		return err
	}
	if _, dup := r.t.st.orders[o.ID]; dup {
		return fmt.Errorf("duplicate order %s", o.ID)
	}
	for _, other := range r.t.st.orders {
		if other.OrderNumber == o.OrderNumber {
			return fmt.Errorf("duplicate order number %s", o.OrderNumber)
		}
	}
	o = cloneOrder(o)
	o.History = nil
	r.t.st.orders[o.ID] = o
	return nil
}

func (r orderRepo) AppendHistory(_ context.Context, orderID string, e shop.StatusEntry) error {
	if err := r.t.faults.take("AppendHistory"); err != nil {
		return err
	}
	o, ok := r.t.st.orders[orderID]
	if !ok {
		return shop.ErrOrderNotFound
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.t.now()
	}
	o.History = append(o.History, e)
	r.t.st.orders[orderID] = o
	return nil
}

func (r orderRepo) LockOrder(_ context.Context, orderID string) (shop.Order, error) {
	o, ok := r.t.st.orders[orderID]
	if !ok {
		return shop.Order{}, shop.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r orderRepo) GetOrder(ctx context.Context, orderID string) (shop.Order, error) {
	return r.LockOrder(ctx, orderID)
}

func (r orderRepo) SetStatus(_ context.Context, orderID string, from, to shop.Status, at time.Time) (bool, error) {
	if err := r.t.faults.take("SetStatus"); err != nil {
		return false, err
	}
	o, ok := r.t.st.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	r.t.st.orders[orderID] = o
	return true, nil
}

func (r orderRepo) SetPaymentStatus(_ context.Context, orderID string, ps shop.PaymentStatus, at time.Time) error {
	o, ok := r.t.st.orders[orderID]
	if !ok {
		return shop.ErrOrderNotFound
	}
	o.PaymentStatus = ps
	o.UpdatedAt = at
	r.t.st.orders[orderID] = o
	return nil
}

func (r orderRepo) StalePending(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	var stale []shop.Order
	for _, o := range r.t.st.orders {
		if o.Status == shop.StatusPending && o.PaymentStatus != shop.PaymentPaid && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

type paymentRepo struct{ t *tx }

func (r paymentRepo) InsertPayment(_ context.Context, p shop.Payment) error {
	if err := r.t.faults.take("InsertPayment"); err != nil {
		return err
	}
	if _, dup := r.t.st.payments[p.Reference]; dup {
		return fmt.Errorf("duplicate payment reference %s", p.Reference)
	}
	r.t.st.payments[p.Reference] = p
	return nil
}

func (r paymentRepo) LockByReference(_ context.Context, reference string) (shop.Payment, error) {
	p, ok := r.t.st.payments[reference]
	if !ok {
		return shop.Payment{}, shop.ErrPaymentNotFound
	}
	return p, nil
}

func (r paymentRepo) AdvanceStatus(_ context.Context, reference string, from, to shop.PaymentStatus, channel string, gatewayResponse []byte, at time.Time) (bool, error) {
	if err := r.t.faults.take("AdvanceStatus"); err != nil {
		return false, err
	}
	p, ok := r.t.st.payments[reference]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	if channel != "" {
		p.Channel = channel
	}
	p.GatewayResponse = append([]byte(nil), gatewayResponse...)
	p.UpdatedAt = at
	r.t.st.payments[reference] = p
	return true, nil
}

func (r paymentRepo) ByOrder(_ context.Context, orderID string) ([]shop.Payment, error) {
	var out []shop.Payment
	for _, p := range r.t.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
