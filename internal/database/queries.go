package database

const orderColumns = `id, restaurant_id, table_id, menu_id, status, nett, tax, service, tip, gross,
		created_at, updated_at, ordered_at, delivered_at, bill_requested_at, paid_at, closed_at`

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, restaurant_id, table_id, menu_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	FindActiveOrderSQL = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE restaurant_id = $1 AND table_id = $2 AND menu_id = $3 AND status < 40`

	GetOrderSQL = `
		SELECT ` + orderColumns + `
		FROM orders WHERE id = $1`

	// Transitions take the row lock so concurrent transitions serialize.
	GetOrderForUpdateSQL = GetOrderSQL + ` FOR UPDATE`

	// Line mutations share-lock the order row: they do not block each
	// other, only a concurrent transition.
	GetOrderForShareSQL = GetOrderSQL + ` FOR SHARE`

	// The status guard makes the write a compare-and-set even without
	// the row lock.
	UpdateOrderTransitionSQL = `
		UPDATE orders SET
			status = $2, nett = $3, tax = $4, service = $5, tip = $6, gross = $7,
			updated_at = $8, ordered_at = $9, delivered_at = $10,
			bill_requested_at = $11, paid_at = $12, closed_at = $13
		WHERE id = $1 AND status = $14`
)

// Participant queries
const (
	participantColumns = `id, order_id, session_id, role, employee_ref, preferred_locale, created_at`

	InsertParticipantSQL = `
		INSERT INTO participants (id, order_id, session_id, role, employee_ref, preferred_locale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, session_id) DO NOTHING`

	GetParticipantSQL = `
		SELECT ` + participantColumns + `
		FROM participants WHERE order_id = $1 AND id = $2`

	FindParticipantBySessionSQL = `
		SELECT ` + participantColumns + `
		FROM participants WHERE order_id = $1 AND session_id = $2`

	ListParticipantsSQL = `
		SELECT ` + participantColumns + `
		FROM participants WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`

	UpdateParticipantLocaleSQL = `
		UPDATE participants SET preferred_locale = $3
		WHERE order_id = $1 AND id = $2`
)

// Order line queries. price_snapshot is written by InsertLineSQL only.
const (
	lineColumns = `id, order_id, participant_id, menu_item_id, price_snapshot, status, created_at, updated_at`

	InsertLineSQL = `
		INSERT INTO order_lines (id, order_id, participant_id, menu_item_id, price_snapshot, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	GetLineForUpdateSQL = `
		SELECT ` + lineColumns + `
		FROM order_lines WHERE order_id = $1 AND id = $2
		FOR UPDATE`

	UpdateLineStatusSQL = `
		UPDATE order_lines SET status = $3, updated_at = $4
		WHERE order_id = $1 AND id = $2 AND status = $5`

	PromoteAddedLinesSQL = `
		UPDATE order_lines SET status = 20, updated_at = $2
		WHERE order_id = $1 AND status = 0
		RETURNING id`

	ListLinesSQL = `
		SELECT ` + lineColumns + `
		FROM order_lines WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`
)

// Action log queries. There is deliberately no update or delete.
const (
	InsertActionSQL = `
		INSERT INTO action_log (order_id, participant_id, line_id, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	ListActionsSQL = `
		SELECT id, order_id, participant_id, line_id, action, notes, created_at
		FROM action_log WHERE order_id = $1
		ORDER BY id ASC`
)

// Pre-order preference queries
const (
	UpsertPreferenceSQL = `
		INSERT INTO pre_order_preferences (browsing_context_id, session_id, locale, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (browsing_context_id, session_id) DO UPDATE SET
			locale = EXCLUDED.locale,
			updated_at = EXCLUDED.updated_at`

	GetPreferenceSQL = `
		SELECT browsing_context_id, session_id, locale, updated_at
		FROM pre_order_preferences
		WHERE browsing_context_id = $1 AND session_id = $2`
)

// Resource lock queries
const (
	lockColumns = `resource_type, resource_id, owner_id, session_id, acquired_at, refreshed_at`

	GetLockSQL = `
		SELECT ` + lockColumns + `
		FROM resource_locks WHERE resource_type = $1 AND resource_id = $2`

	GetLockForUpdateSQL = GetLockSQL + ` FOR UPDATE`

	InsertLockSQL = `
		INSERT INTO resource_locks (resource_type, resource_id, owner_id, session_id, acquired_at, refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	RefreshLockSQL = `
		UPDATE resource_locks SET refreshed_at = $4
		WHERE resource_type = $1 AND resource_id = $2 AND session_id = $3`

	// TakeOverLockSQL replaces an expired holder. The refreshed_at guard
	// keeps a holder that refreshed in the meantime.
	TakeOverLockSQL = `
		UPDATE resource_locks SET owner_id = $3, session_id = $4, acquired_at = $5, refreshed_at = $5
		WHERE resource_type = $1 AND resource_id = $2 AND refreshed_at <= $6`

	DeleteLockSQL = `
		DELETE FROM resource_locks
		WHERE resource_type = $1 AND resource_id = $2 AND session_id = $3`

	DeleteStaleLocksSQL = `
		DELETE FROM resource_locks WHERE refreshed_at <= $1`
)

// Catalog queries
const (
	GetMenuItemPriceSQL = `
		SELECT price FROM menu_items WHERE id = $1 AND available`
)
