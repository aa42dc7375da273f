// Command fleetctl is the DroneOps fleet console.
package main

func main() {
	Execute()
}
