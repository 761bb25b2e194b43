// Package scheduler runs the periodic sweeps behind scheduled service
// operations: activations that were booked for a future date and
// terminations parked in terminating until their date arrives. Every sweep
// action is an ordinary lifecycle operation, so a sweep is safe to run on
// any cadence and safe to repeat.
package scheduler

import (
	"context"
	"time"

	"github.com/fiberline/switchyard/internal/domain"
	"github.com/fiberline/switchyard/internal/log"
	"github.com/fiberline/switchyard/internal/orchestration"
	"github.com/fiberline/switchyard/internal/services"
)

// DefaultBatchSize caps how many due instances one sweep processes per kind.
const DefaultBatchSize = 50

// Scheduler owns the sweep loop. Start it once; Stop waits for the loop to
// exit. SweepOnce is independent and usable without the loop.
type Scheduler struct {
	svc      *orchestration.Service
	interval time.Duration
	batch    int

	stop chan struct{}
	done chan struct{}
}

// New builds a scheduler over the facade. interval <= 0 means one minute;
// batchSize <= 0 means DefaultBatchSize.
func New(svc *orchestration.Service, interval time.Duration, batchSize int) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		batch:    batchSize,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start() {
	log.Info(log.CatScheduler, "scheduler started",
		"interval", s.interval.String(), "batch_size", s.batch)
	log.SafeGo("scheduler-sweep", s.run)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	log.Info(log.CatScheduler, "scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// SweepOnce processes everything currently due and reports how many
// instances were activated and terminated. Per-instance failures are logged
// and skipped; the next sweep picks them up again.
func (s *Scheduler) SweepOnce(ctx context.Context) (activated, terminated int) {
	activated = s.sweepActivations(ctx)
	terminated = s.sweepTerminations(ctx)
	if activated > 0 || terminated > 0 {
		log.Info(log.CatScheduler, "sweep finished",
			"activated", activated, "terminated", terminated)
	}
	return activated, terminated
}

func (s *Scheduler) sweepActivations(ctx context.Context) int {
	due, err := s.svc.Lifecycle().GetServicesDueForActivation(s.batch)
	if err != nil {
		log.ErrorErr(log.CatScheduler, "listing due activations failed", err)
		return 0
	}

	count := 0
	for _, instance := range due {
		// A booked activation can predate provisioning; walk the instance
		// into provisioning first so the activate transition is legal.
		if instance.Status() == domain.ServiceStatusPending {
			if err := s.svc.Lifecycle().StartProvisioning(ctx, instance.TenantID(), instance.ServiceInstanceID()); err != nil {
				log.Warn(log.CatScheduler, "scheduled activation skipped",
					"service_instance_id", instance.ServiceInstanceID(), "error", err.Error())
				continue
			}
		}
		res, err := s.svc.ActivateService(ctx, orchestration.ActivateServiceRequest{
			TenantID:          instance.TenantID(),
			ServiceInstanceID: instance.ServiceInstanceID(),
			TriggeredBy:       "scheduler",
		})
		if err != nil || !res.Success {
			log.Warn(log.CatScheduler, "scheduled activation failed",
				"service_instance_id", instance.ServiceInstanceID(), "error", resultError(res, err))
			continue
		}
		count++
	}
	return count
}

func (s *Scheduler) sweepTerminations(ctx context.Context) int {
	due, err := s.svc.Lifecycle().GetServicesDueForTermination(s.batch)
	if err != nil {
		log.ErrorErr(log.CatScheduler, "listing due terminations failed", err)
		return 0
	}

	count := 0
	for _, instance := range due {
		res, err := s.svc.TerminateService(ctx, orchestration.TerminateServiceRequest{
			TenantID:          instance.TenantID(),
			ServiceInstanceID: instance.ServiceInstanceID(),
			Reason:            "scheduled termination date reached",
			TriggeredBy:       "scheduler",
		})
		if err != nil || !res.Success {
			log.Warn(log.CatScheduler, "scheduled termination failed",
				"service_instance_id", instance.ServiceInstanceID(), "error", resultError(res, err))
			continue
		}
		count++
	}
	return count
}

func resultError(res *services.OperationResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res != nil && res.Err != "" {
		return res.Err
	}
	return "operation reported failure"
}
