package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/edulocus/cbt-session-service/internal/config"
	"github.com/edulocus/cbt-session-service/internal/database"
	"github.com/edulocus/cbt-session-service/internal/logger"
)

// Seeds a demo cohort for load and integration testing.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding 50 Students ===")

	className := "XII TKJ 2"

	// Same hash for every seeded account; bcrypt per row would make the
	// seeder crawl at higher costs.
	hash, err := bcrypt.GenerateFromPassword([]byte("ujiancoba"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash seed password")
	}

	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
		"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
		"Rafi Ahmad", "Siska Saraswati", "Toni Setiawan", "Umi Kalsum", "Vina Panduwinata",
		"Wahyu Hidayat", "Xena Maharani", "Yudi Pratama", "Zaki Anwar", "Alifia Zahra",
		"Bagas Saputra", "Citra Kirana", "Dimas Anggara", "Elisa Novita", "Fikri Maulana",
		"Gali Rakasiwi", "Hani Hanifah", "Iqbal Ramadhan", "Jasmine Azzahra", "Kevin Sanjaya",
		"Larasati Dewi", "Miko Pambudi", "Nia Ramadhani", "Oscar Lawalata", "Puput Melati",
		"Reza Rahadian", "Sari Nila", "Tigor Siahaan", "Utari Maharani", "Vicky Prasetyo",
	}

	rows := make([][]interface{}, 0, len(names))
	for i, name := range names {
		nisn := fmt.Sprintf("user%d", i+1)
		rows = append(rows, []interface{}{nisn, name, className, string(hash)})
	}

	copied, err := pool.CopyFrom(ctx,
		pgx.Identifier{"students"},
		[]string{"nisn", "name", "class_name", "password_hash"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed students")
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", copied, len(names))
}
