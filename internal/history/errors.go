package history

import "github.com/rotisserie/eris"

// errNoRemote marks clients running without a remote store configured.
var errNoRemote = eris.New("history: no remote store configured")
