// Package discovery advertises the satellite over mDNS and locates the hub.
//
// Ownership boundary:
// - Advertiser keeps one registration alive and re-registers on network change.
// - Resolver browses for the hub in device-initiated mode.
// - Neither ever gives up; failures back off and retry until ctx ends.
package discovery
