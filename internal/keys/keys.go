package keys

// Package keys centralizes Redis key construction for delivery queues.
// Every key of a queue shares the {queue} hash tag so multi-key scripts stay cluster safe.

const prefix = "reportq:{"

func Pending(q string) string { return prefix + q + "}:pending" }
func Active(q string) string  { return prefix + q + "}:active" }
func Delayed(q string) string { return prefix + q + "}:delayed" }
func Dead(q string) string    { return prefix + q + "}:dead" }
func Sent(q string) string    { return prefix + q + "}:sent" }

// Unique returns the per-queue SET that tracks delivery task IDs for de-duplication.
func Unique(q string) string { return prefix + q + "}:unique" }

// DeadExpiry is a ZSET index that tracks when dead-list members should be purged.
// Members are the raw task JSON; scores are absolute expiration timestamps in ms.
func DeadExpiry(q string) string { return prefix + q + "}:dead_expiry" }

// Queue holds all precomputed keys for a queue name.
type Queue struct {
	Name       string
	Pending    string
	Active     string
	Delayed    string
	Dead       string
	Sent       string
	Unique     string
	DeadExpiry string
}

// For returns a set of precomputed keys for the provided queue.
func For(q string) Queue {
	p := prefix + q + "}:"
	return Queue{
		Name:       q,
		Pending:    p + "pending",
		Active:     p + "active",
		Delayed:    p + "delayed",
		Dead:       p + "dead",
		Sent:       p + "sent",
		Unique:     p + "unique",
		DeadExpiry: p + "dead_expiry",
	}
}
