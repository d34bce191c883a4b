package version

// VERSION is the current version of the app.
const VERSION = "0.2.0"

// GITCOMMIT is the git commit the binary was built from.
var GITCOMMIT = ""
