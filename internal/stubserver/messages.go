package stubserver

import "fmt"

// Demo notification texts, phrased like the marketplace's real events.

const (
	pickupRequestedBody = "New pickup request near %s — open the map to claim it."
	pickupConfirmedBody = "%s confirmed your pickup. They'll arrive in the booked slot."
	pickupCompletedBody = "Pickup completed! You earned %d EcoPoints."
	reviewReceivedBody  = "%s left a review on your profile."
	rankChangedBody     = "You climbed to rank #%d on the leaderboard!"
)

func PickupRequested(area string) string {
	return fmt.Sprintf(pickupRequestedBody, area)
}

func PickupConfirmed(ngoName string) string {
	return fmt.Sprintf(pickupConfirmedBody, ngoName)
}

func PickupCompleted(points int) string {
	return fmt.Sprintf(pickupCompletedBody, points)
}

func ReviewReceived(reviewer string) string {
	return fmt.Sprintf(reviewReceivedBody, reviewer)
}

func RankChanged(rank int) string {
	return fmt.Sprintf(rankChangedBody, rank)
}
