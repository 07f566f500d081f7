package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"drawboard/internal/database"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Database connection
	db, err := gorm.Open(postgres.Open(database.LoadConfig().DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// Check if drawings table exists
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_name = 'drawings'
		)
	`
	if err := db.Raw(query).Scan(&exists).Error; err != nil {
		log.Fatal("Failed to check drawings table:", err)
	}

	fmt.Printf("📊 Drawings table exists: %v\n", exists)
	fmt.Println()

	if !exists {
		fmt.Println("❌ Drawings table does NOT exist!")
		fmt.Println("⚠️  Start the server once to run the migration")
		return
	}

	// Get drawing statistics
	type DrawingStats struct {
		Total      int64
		Owners     int64
		MaxVersion int64
		TotalBytes int64
	}
	var stats DrawingStats
	query = `
		SELECT
			COUNT(*) as total,
			COUNT(DISTINCT owner_id) as owners,
			COALESCE(MAX(version), 0) as max_version,
			COALESCE(SUM(pg_column_size(elements)), 0) as total_bytes
		FROM drawings
	`
	if err := db.Raw(query).Scan(&stats).Error; err != nil {
		log.Fatal("Failed to get statistics:", err)
	}

	fmt.Println("📈 Drawing Statistics:")
	fmt.Printf("  - Total drawings: %d\n", stats.Total)
	fmt.Printf("  - Distinct owners: %d\n", stats.Owners)
	fmt.Printf("  - Highest version: %d\n", stats.MaxVersion)
	fmt.Printf("  - Elements size: %d bytes\n", stats.TotalBytes)
	fmt.Println()

	// Get recently updated drawings
	type DrawingInfo struct {
		ID           string
		Name         string
		OwnerID      int64
		Version      int64
		ElementCount int64
		UpdatedAt    string
	}
	var drawings []DrawingInfo
	query = `
		SELECT id, name, owner_id, version,
			jsonb_array_length(elements) as element_count,
			updated_at
		FROM drawings
		ORDER BY updated_at DESC
		LIMIT 10
	`
	if err := db.Raw(query).Scan(&drawings).Error; err != nil {
		log.Fatal("Failed to get recent drawings:", err)
	}

	fmt.Println("🖼️  Recently Updated Drawings (last 10):")
	for _, d := range drawings {
		fmt.Printf("  - %s %q owner=%d version=%d elements=%d updated=%s\n",
			d.ID, d.Name, d.OwnerID, d.Version, d.ElementCount, d.UpdatedAt)
	}
}
