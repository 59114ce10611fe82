package main

import "github.com/guildledger/backend/internal/cli"

// @title Guild Economy API
// @version 1.0
// @description Economy and leveling service for the guild bot gateway
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cli.Execute()
}
