// Package assistant provides a client for a duplex speech-assistant
// conversation stream.
//
// A turn sends one configuration message followed by bounded audio frames
// while the server concurrently streams back events, synthesized audio,
// recognition results and errors. Opaque conversation state returned at the
// end of a turn is replayed in the configuration of the next one.
package assistant
