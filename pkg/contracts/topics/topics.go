package topics

const (
	// Ciclo de vida das rodadas e apostas
	RoundEvents = "round_events"

	// Comissões de indicação (consumido fora deste repositório)
	CommissionEvents = "commission_events"
)

// Canal Redis Pub/Sub usado pelo round-feed
const RoundEventsBroadcast = "round_events_broadcast"
