// Command dirstore inspects and maintains directories that hold one value
// per file, the file name being the key.
//
// Usage:
//
//	dirstore -d /var/lib/app/counters -c uint32 ls
//	dirstore -d ./state -c json get settings -o yaml
//	echo 42 | dirstore -d ./counters -c uint32 put hits
//	dirstore -d ./state verify
//	dirstore -d ./state copy /mnt/replica --prune
//	dirstore -d ./state watch --metrics-addr :9100
//	dirstore -d ./state backup create
//
// Configuration is read from $XDG_CONFIG_HOME/dirstore/config.yaml and
// DIRSTORE_* environment variables; flags take precedence.
package main
