// Package subscription downloads subscription feeds and extracts raw links.
package subscription
