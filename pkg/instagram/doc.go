// Package instagram holds what the parser knows about Instagram's web UI:
// page URLs, how to read the URL reached after login, and the CSS selectors
// and text markers the navigator and extractor look for.
//
// Nothing here talks to the network. Selectors change whenever Instagram
// ships a new frontend, so they are kept in one place.
package instagram
