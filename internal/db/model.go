package db

// User is the durable local identity. LocalUuid is generated on the first
// successful verification and never reused; it's the uuid the game session
// runs under regardless of which service authenticated the player
type User struct {
	// LocalUuid contains the engine's own uuid without dashes in lower case
	LocalUuid string
	// ServiceId references the verification service by its configuration order
	ServiceId int
	// RemoteId contains the uuid issued by the verification service, without dashes in lower case
	RemoteId string
	// Username contains the last username the service reported for this identity
	Username string
	// Active becomes false when the identity was merged into another one
	Active bool
}

// ProfileOccupancy maps an in-game username to the local identity currently
// holding it. At most one occupant per normalized name
type ProfileOccupancy struct {
	// Username is stored normalized (lower case)
	Username string
	// LocalUuid references User.LocalUuid
	LocalUuid string
}

// RestorerEntry is a skin restoration cache row, unique per remote identity
type RestorerEntry struct {
	// OnlineUuid contains the verified remote identity's uuid
	OnlineUuid string
	// SkinUrl is the source skin url the stored data was generated from
	SkinUrl string
	// RestorerData contains the re-signed textures property as a JSON blob
	RestorerData string
}
