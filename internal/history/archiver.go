package history

import (
	"log"
	"sync"

	"github.com/lowaak/smart-trainer/notch-rider/internal/events"
	"github.com/lowaak/smart-trainer/notch-rider/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

const DefaultRecentLimit = 10

// SavedWorkouts is the part of the session machine the archiver watches.
type SavedWorkouts interface {
	ListenToSaved(ch chan<- session.WorkoutSummary) func()
}

// Overview is what the history panel shows.
type Overview struct {
	Recent          []Ride
	RideCount       int64
	TotalDistanceKm float64
}

// Archiver stores every saved workout and republishes the history overview.
type Archiver struct {
	store  *Store
	limit  int
	logger *log.Logger

	overviewEvent *events.ChannelEvent[Overview]

	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewArchiver(store *Store, saved SavedWorkouts, limit int, logger *log.Logger) *Archiver {
	if store == nil {
		panic("Archiver: store cannot be nil")
	}
	if saved == nil {
		panic("Archiver: saved cannot be nil")
	}
	if logger == nil {
		panic("Archiver: logger cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	a := &Archiver{
		store:         store,
		limit:         limit,
		logger:        logger,
		overviewEvent: events.NewChannelEvent[Overview](true),
		doneChan:      make(chan struct{}),
	}
	a.publishOverview()

	savedChan := make(chan session.WorkoutSummary, 4)
	unregister := saved.ListenToSaved(savedChan)
	a.wg.Add(1)
	go_func_utils.SafeGo(logger, func() {
		defer a.wg.Done()
		defer unregister()
		for {
			select {
			case <-a.doneChan:
				return
			case summary := <-savedChan:
				a.archive(summary)
			}
		}
	})
	return a
}

func (a *Archiver) archive(summary session.WorkoutSummary) {
	if _, err := a.store.Save(summary); err != nil {
		a.logger.Printf("Archiver: %v", err)
		return
	}
	a.publishOverview()
}

// Refresh re-reads the store, e.g. after an import.
func (a *Archiver) Refresh() {
	a.publishOverview()
}

func (a *Archiver) publishOverview() {
	rides, err := a.store.Recent(a.limit)
	if err != nil {
		a.logger.Printf("Archiver: load recent rides: %v", err)
		return
	}
	count, err := a.store.Count()
	if err != nil {
		a.logger.Printf("Archiver: count rides: %v", err)
		return
	}
	total, err := a.store.TotalDistanceKm()
	if err != nil {
		a.logger.Printf("Archiver: total distance: %v", err)
		return
	}
	a.overviewEvent.Notify(Overview{Recent: rides, RideCount: count, TotalDistanceKm: total})
}

// ListenToOverview registers a channel for history overview changes.
// Returns a deregistration function that can be called to remove the listener
func (a *Archiver) ListenToOverview(ch chan<- Overview) func() {
	return a.overviewEvent.Listen(ch)
}

func (a *Archiver) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.doneChan)
		a.wg.Wait()
	})
}
