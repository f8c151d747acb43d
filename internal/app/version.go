package app

const ServiceName = "student-records"

// Set via -ldflags:
//
//	go build -ldflags="-X 'student-records/internal/app.Version=1.0.0'"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
