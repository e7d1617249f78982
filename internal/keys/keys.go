// Package keys builds the Redis key names shared by the golden challenge stores.
package keys

import "fmt"

// Prefix namespaces every key written by this service.
const Prefix = "typeers:golden:"

func Campaign(id string) string { return Prefix + "campaign:" + id }

func PendingIndex() string { return Prefix + "pending" }

func ActiveIndex() string { return Prefix + "active" }

func CommunityIndex(communityID string) string { return Prefix + "community:" + communityID }

func CreatorIndex(userID string) string { return Prefix + "creator:" + userID }

// PostCampaign maps an external post id back to its campaign.
func PostCampaign(postID string) string { return Prefix + "post:" + postID }

func Balance(userID string) string { return Prefix + "tokens:" + userID }

func Order(orderID string) string { return Prefix + "order:" + orderID }

func Claimed(campaignID, userID string) string {
	return fmt.Sprintf("%sclaimed:%s:%s", Prefix, campaignID, userID)
}

func Played(campaignID, userID string) string {
	return fmt.Sprintf("%splayed:%s:%s", Prefix, campaignID, userID)
}

func Finished(campaignID, userID string) string {
	return fmt.Sprintf("%sfinished:%s:%s", Prefix, campaignID, userID)
}

func Session(sessionID string) string { return Prefix + "session:" + sessionID }

func VaultItems(userID string) string { return Prefix + "vault:" + userID + ":items" }

func VaultRedeemed(userID string) string { return Prefix + "vault:" + userID + ":redeemed" }

func Analytics(campaignID string) string { return Prefix + "analytics:" + campaignID }

// LinkClicks holds the "brand" field and one "aff:{rewardId}" field per reward.
func LinkClicks(campaignID string) string { return Prefix + "links:" + campaignID }
