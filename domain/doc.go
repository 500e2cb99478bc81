// Package domain defines the core data structures of the Sazed capture engine.
// It contains the primary domain models, such as LogEvent, Location, and
// PathMapping, as well as the repository interfaces that define the contracts
// for event persistence.
//
// This package serves as the central point for application-wide types and
// business rules, ensuring a clean separation between the engine's core logic
// and its implementation details, such as the database, transport, or the
// host UI. By defining interfaces for repositories, the domain package remains
// independent of the data storage technology.
package domain
