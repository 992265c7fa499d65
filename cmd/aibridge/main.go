package main

func main() {
	SetupServeCmd()
	SetupCleanupCmd()
	Execute()
}
