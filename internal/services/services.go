package services

import (
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/cache"
	"example.com/backstage/dairy/internal/messaging"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/repository"
	"example.com/backstage/dairy/internal/tracing"
)

// Deps are the process-wide collaborators shared by every request
type Deps struct {
	Cache     cache.Cache
	Metrics   *metrics.Metrics
	Tracer    tracing.Tracer
	Publisher messaging.Publisher
	Trips     *TripTracker
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics()
	}
	if d.Tracer == nil {
		d.Tracer = tracing.Noop()
	}
	if d.Publisher == nil {
		d.Publisher = messaging.Discard{}
	}
	if d.Trips == nil {
		d.Trips = NewTripTracker()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Services groups every service acting through one backend client. It is
// cheap to build, so callers create one per request or per command with a
// client scoped to the caller.
type Services struct {
	Assignments   *AssignmentService
	Trips         *TripService
	Management    *AssignmentManager
	Pickups       *PickupService
	Billing       *BillingService
	Notifications *NotificationService
	Directory     *DirectoryService
}

// New wires the services over client
func New(client backend.Client, deps Deps) *Services {
	deps = deps.withDefaults()
	repos := repository.New(client)

	assignments := NewAssignmentService(client, repos, deps)
	return &Services{
		Assignments:   assignments,
		Trips:         NewTripService(client, deps),
		Management:    NewAssignmentManager(repos, deps),
		Pickups:       NewPickupService(assignments, repos, deps),
		Billing:       NewBillingService(repos, deps),
		Notifications: NewNotificationService(client, deps),
		Directory:     NewDirectoryService(client, repos),
	}
}
