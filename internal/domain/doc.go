// Package domain models amateur radio digital-mode reception reports produced
// by WSJT-X.
//
// # Sources
//
// Entries come from two places. Live decodes arrive as UDP telegrams from a
// running WSJT-X instance (see [DecodeEvent] and [WSPRDecodeEvent]); the
// receiving station's dial frequency, callsign, and grid come from the most
// recent [StatusEvent]. Historical decodes are read from the ALL.TXT log,
// one line per decode:
//
//	231006_035130     3.573 Rx FT8    -20  0.6 2753 CQ DX F4BKV IN95
//
// Frequencies are absolute, in Hz: the dial frequency plus the audio offset
// of the decode.
//
// # Message grammar
//
// Free-text messages are parsed by a [Grammar]. The WSJT-X grammar recognizes
// CQ calls (with an optional one-to-four letter or three digit modifier),
// directed exchanges "<target> <sender> [R] <report|grid>", and bracketed
// hashed callsigns. Messages containing a semicolon (DXpedition and contest
// multi-part messages) yield no sender.
//
// RR73 is a sign-off, never a grid, even though it is a valid locator.
//
// # Enrichment
//
// An [Enricher] turns an [Entry] into a sink [Point]: band classification,
// calendar tags in UTC and ISO week numbering, and, when the sender grid is
// known, the geodesic distance (meters) and initial bearing (degrees) from
// the receiver, measured between locator cell centers on WGS-84.
package domain
