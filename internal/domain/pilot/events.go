package pilot

import (
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// SupporterTierGrantedEvent is emitted by the payment integration when a
// pilot's supporter tier is granted or renewed. The streak accountant
// consumes it to accrue freeze credits.
type SupporterTierGrantedEvent struct {
	shared.BaseEvent
	PilotID  shared.PilotID
	TierName string
}

// Payload implements shared.Event interface.
func (e SupporterTierGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pilot_id":  e.PilotID.String(),
		"tier_name": e.TierName,
	}
}

// NewSupporterTierGrantedEvent creates a new SupporterTierGrantedEvent.
func NewSupporterTierGrantedEvent(pilotID shared.PilotID, tierName string) SupporterTierGrantedEvent {
	return SupporterTierGrantedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSupporterTierGranted, pilotID.String()),
		PilotID:   pilotID,
		TierName:  tierName,
	}
}
