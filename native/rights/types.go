package rights

// RequestStatus enumerates the lifecycle states of a publish request.
type RequestStatus uint8

const (
	StatusPending RequestStatus = iota
	StatusApproved
	StatusDisapproved
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDisapproved, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusDisapproved:
		return "disapproved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request records a publisher asking a producer for commission rights over a
// token. CommissionBps is snapshotted from the token at creation time and is
// never re-read, so later mints of similar content cannot retroactively
// change an agreed commission.
type Request struct {
	ID            uint64        `json:"id"`
	TokenID       uint64        `json:"tokenId"`
	Producer      [20]byte      `json:"producer"`
	Publisher     [20]byte      `json:"publisher"`
	CommissionBps uint32        `json:"commissionBps"`
	Status        RequestStatus `json:"status"`
	CreatedAt     int64         `json:"createdAt"`
	DecidedAt     int64         `json:"decidedAt"`
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
