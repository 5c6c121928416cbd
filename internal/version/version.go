package version

// Version is the current release of ukboards.
const Version = "0.5.0"
